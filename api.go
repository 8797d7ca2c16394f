package offcache

import (
	"context"
	"net/http"

	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/generation"
	"github.com/unkn0wn-root/offcache/registry"
)

// Interceptor is the host-agnostic lifecycle surface. A thin platform
// adapter wires these three methods to whatever host API is available
// (see httpadapter for plain HTTP); the classifier, policies, and
// coordinators behind them stay host-independent and testable.
type Interceptor interface {
	// OnInstall mints the next generation and precaches the manifest into
	// a fresh versioned store. The returned Version is installed but not
	// yet serving.
	OnInstall(ctx context.Context) (Version, error)

	// OnActivate promotes the installed version to active, takes over
	// clients per the takeover policy, and evicts retired stores.
	OnActivate(ctx context.Context) error

	// OnRequest classifies req and executes the matching policy against
	// the active store.
	OnRequest(ctx context.Context, req Request) (*Response, error)
}

// Options tune the agent. Only App and Manifest are required; others have
// sensible defaults.
type Options struct {
	// Required
	App      string // store name prefix, e.g. "leafdoc"
	Manifest Manifest

	Registry    registry.Registry        // nil => registry.NewLocal(nil)
	Fetcher     Fetcher                  // nil => &HTTPFetcher{}
	Generations generation.Store         // nil => generation.NewLocal()
	Classifier  *Classifier              // nil => DefaultClassifier(Manifest)
	HeaderCodec codec.Codec[http.Header] // nil => CBOR
	BodyCodec   codec.Codec[[]byte]      // nil => codec.Bytes; wrap with codec.Limit to cap entry size
	Logger      Logger                   // nil => NopLogger
	Hooks       Hooks                    // nil => NopHooks

	// DeferTakeover makes activation leave already-connected clients on
	// their current version; a retired store is evicted when its last
	// client disconnects. Default false: activation immediately repoints
	// every open client and evicts all retired stores (fast rollout, with
	// a brief window where tabs may mix versions - accepted by design of
	// the eager mode).
	DeferTakeover bool

	// PersistRevalidateMiss writes through the fallback network fetch when
	// stale-while-revalidate misses the cache, making the policy
	// self-healing. Default false: the fallback response is returned
	// without being stored.
	PersistRevalidateMiss bool
}

// New validates opts and returns an idle Agent: nothing is fetched or
// stored until OnInstall (or Resume).
func New(opts Options) (*Agent, error) {
	return newAgent(opts)
}
