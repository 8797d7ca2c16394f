package offcache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/generation"
	"github.com/unkn0wn-root/offcache/registry"
)

// storeRef pairs a version with its opened store. Refs are immutable;
// clients and the agent swap whole refs at activation.
type storeRef struct {
	ver   Version
	store registry.Store
}

// Agent is the delivery agent. It implements Interceptor and additionally
// exposes explicit-generation installs (Precache), client connections
// (Connect), and Resume for adopting a persisted store after restart.
type Agent struct {
	app         string
	manifest    Manifest
	cls         Classifier
	reg         registry.Registry
	fetch       Fetcher
	gens        generation.Store
	hcodec      codec.Codec[http.Header]
	bcodec      codec.Codec[[]byte]
	log         Logger
	hooks       Hooks
	deferTake   bool
	persistMiss bool

	mu        sync.RWMutex
	installed *storeRef
	active    *storeRef
	clients   map[*Client]struct{}
	pinned    map[string]int      // store name -> connected clients
	retired   map[string]struct{} // awaiting drain (deferred takeover)
	closed    bool

	reval singleflight.Group
	bg    sync.WaitGroup
}

var _ Interceptor = (*Agent)(nil)

func newAgent(opts Options) (*Agent, error) {
	if opts.App == "" {
		return nil, fmt.Errorf("offcache: app is required")
	}
	if err := opts.Manifest.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		app:         opts.App,
		manifest:    opts.Manifest,
		deferTake:   opts.DeferTakeover,
		persistMiss: opts.PersistRevalidateMiss,
		clients:     make(map[*Client]struct{}),
		pinned:      make(map[string]int),
		retired:     make(map[string]struct{}),
	}

	// defaults
	a.log = coalesce[Logger](opts.Logger, NopLogger{})
	a.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.Registry != nil {
		a.reg = opts.Registry
	} else {
		a.reg = registry.NewLocal(nil)
	}
	if opts.Fetcher != nil {
		a.fetch = opts.Fetcher
	} else {
		a.fetch = &HTTPFetcher{}
	}
	if opts.Generations != nil {
		a.gens = opts.Generations
	} else {
		a.gens = generation.NewLocal()
	}
	if opts.Classifier != nil {
		a.cls = *opts.Classifier
	} else {
		a.cls = DefaultClassifier(opts.Manifest)
	}
	if opts.HeaderCodec != nil {
		a.hcodec = opts.HeaderCodec
	} else {
		hc, err := codec.NewCBOR[http.Header](false)
		if err != nil {
			return nil, err
		}
		a.hcodec = hc
	}
	if opts.BodyCodec != nil {
		a.bcodec = opts.BodyCodec
	} else {
		a.bcodec = codec.Bytes{}
	}

	return a, nil
}

// OnInstall mints the next generation from the generation counter and
// precaches into it.
func (a *Agent) OnInstall(ctx context.Context) (Version, error) {
	gen, err := a.gens.Next(ctx, a.app)
	if err != nil {
		a.hooks.GenerationError(a.app, err)
		return Version{}, fmt.Errorf("offcache: mint generation: %w", err)
	}
	return a.Precache(ctx, gen)
}

// Precache opens the store for generation gen and fetches+stores every
// manifest URL. All-or-nothing: the first failure aborts the install,
// removes the fresh store, and leaves the prior version authoritative.
// Idempotent per generation - re-running overwrites the same keys, one
// entry per URL.
func (a *Agent) Precache(ctx context.Context, gen uint64) (Version, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return Version{}, ErrClosed
	}

	ver := Version{App: a.app, Gen: gen}
	name := ver.Name()
	store, err := a.reg.Open(ctx, name)
	if err != nil {
		return Version{}, fmt.Errorf("offcache: open store %q: %w", name, err)
	}

	urls := a.manifest.URLs()
	for _, u := range urls {
		req := Request{URL: u}
		resp, err := a.fetch.Fetch(ctx, req)
		if err != nil {
			a.abortInstall(name)
			return Version{}, &PrecacheError{Version: name, URL: u, Err: err}
		}
		if resp.Status >= 400 {
			a.abortInstall(name)
			return Version{}, &PrecacheError{Version: name, URL: u, Status: resp.Status}
		}
		ok, err := a.writeEntry(ctx, store, name, req.Key(), resp)
		if err != nil {
			a.abortInstall(name)
			return Version{}, &PrecacheError{Version: name, URL: u, Err: err}
		}
		if !ok {
			a.abortInstall(name)
			return Version{}, &PrecacheError{Version: name, URL: u, Err: errStoreRejected}
		}
	}

	a.mu.Lock()
	a.installed = &storeRef{ver: ver, store: store}
	a.mu.Unlock()

	a.log.Info("installed version", Fields{"store": name, "urls": len(urls)})
	return ver, nil
}

func (a *Agent) abortInstall(name string) {
	if err := a.reg.Delete(context.Background(), name); err != nil {
		a.log.Warn("failed to remove aborted install", Fields{"store": name, "err": err})
	}
}

// OnActivate promotes the installed version. Eager takeover (the default)
// repoints every connected client and evicts every retired store of this
// app; deferred takeover repoints only future connections and drains
// retired stores as their clients disconnect. Eviction never starts for a
// store that still has pinned clients.
func (a *Agent) OnActivate(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.installed == nil {
		a.mu.Unlock()
		return ErrNotInstalled
	}
	act := a.installed
	a.active = act
	a.installed = nil

	if !a.deferTake {
		// take control of every open client
		for c := range a.clients {
			c.repoint(act)
		}
		a.pinned = map[string]int{act.ver.Name(): len(a.clients)}
		a.retired = make(map[string]struct{})
	}
	a.mu.Unlock()

	a.log.Info("activated version", Fields{"store": act.ver.Name(), "eager": !a.deferTake})
	return a.evictRetired(ctx, act.ver.Name())
}

// evictRetired deletes every store of this app other than activeName,
// except (in deferred mode) stores that still have pinned clients.
func (a *Agent) evictRetired(ctx context.Context, activeName string) error {
	names, err := a.reg.Names(ctx)
	if err != nil {
		return fmt.Errorf("offcache: list stores: %w", err)
	}

	var firstErr error
	for _, name := range names {
		if name == activeName {
			continue
		}
		if _, ok := parseVersion(a.app, name); !ok {
			continue // foreign store, not ours to evict
		}

		a.mu.Lock()
		if n := a.pinned[name]; n > 0 {
			a.retired[name] = struct{}{}
			a.mu.Unlock()
			a.hooks.TakeoverDeferred(name, n)
			a.log.Debug("eviction deferred", Fields{"store": name, "clients": n})
			continue
		}
		delete(a.retired, name)
		a.mu.Unlock()

		if err := a.reg.Delete(ctx, name); err != nil {
			a.log.Error("evict failed", Fields{"store": name, "err": err})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.hooks.StoreEvicted(name)
		a.log.Info("evicted store", Fields{"store": name})
	}
	return firstErr
}

// Resume adopts the newest persisted store for this app as active without
// fetching anything. Use after a restart with a persistent registry (e.g.
// sqlite) when the network may be unavailable. Returns false when no store
// of this app exists.
func (a *Agent) Resume(ctx context.Context) (Version, bool, error) {
	names, err := a.reg.Names(ctx)
	if err != nil {
		return Version{}, false, fmt.Errorf("offcache: list stores: %w", err)
	}

	var best Version
	found := false
	for _, name := range names {
		v, ok := parseVersion(a.app, name)
		if !ok {
			continue
		}
		if !found || v.Gen > best.Gen {
			best = v
			found = true
		}
	}
	if !found {
		return Version{}, false, nil
	}

	store, err := a.reg.Open(ctx, best.Name())
	if err != nil {
		return Version{}, false, fmt.Errorf("offcache: open store %q: %w", best.Name(), err)
	}

	a.mu.Lock()
	a.active = &storeRef{ver: best, store: store}
	a.mu.Unlock()

	a.log.Info("resumed version", Fields{"store": best.Name()})
	return best, true, nil
}

// Active returns the currently serving version, if any.
func (a *Agent) Active() (Version, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.active == nil {
		return Version{}, false
	}
	return a.active.ver, true
}

// OnRequest executes the policy for req against the active version.
func (a *Agent) OnRequest(ctx context.Context, req Request) (*Response, error) {
	a.mu.RLock()
	act := a.active
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if act == nil {
		return nil, ErrNoActiveVersion
	}
	return a.execute(ctx, act, req)
}

// Connect registers an open client connection. The client is pinned to the
// version active right now and keeps it until takeover (eager activation)
// or disconnect. A client connected before any activation is uncontrolled:
// its requests go straight to the network.
func (a *Agent) Connect(id string) (*Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	c := &Client{id: id, a: a, ref: a.active}
	a.clients[c] = struct{}{}
	if c.ref != nil {
		a.pinned[c.ref.ver.Name()]++
	}
	a.log.Debug("client connected", Fields{"client": id, "controlled": c.ref != nil})
	return c, nil
}

// disconnect removes c and drains its pin; a retired store whose last
// client left is evicted here. The pinned version is read under a.mu, not
// captured earlier: an eager takeover between Close and disconnect repoints
// c and recounts it against the new store, so the decrement must follow the
// ref as it is now.
func (a *Agent) disconnect(c *Client) {
	a.mu.Lock()
	delete(a.clients, c)

	name := ""
	c.mu.RLock()
	if c.ref != nil {
		name = c.ref.ver.Name()
	}
	c.mu.RUnlock()

	evict := false
	if name != "" {
		a.pinned[name]--
		if a.pinned[name] <= 0 {
			delete(a.pinned, name)
			if _, ok := a.retired[name]; ok {
				delete(a.retired, name)
				evict = true
			}
		}
	}
	a.mu.Unlock()

	if evict {
		if err := a.reg.Delete(context.Background(), name); err != nil {
			a.log.Error("evict failed", Fields{"store": name, "err": err})
			return
		}
		a.hooks.StoreEvicted(name)
		a.log.Info("evicted drained store", Fields{"store": name})
	}
}

// Close drains background revalidations and releases the generation counter
// and registry.
func (a *Agent) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.clients = make(map[*Client]struct{})
	a.mu.Unlock()

	a.bg.Wait()

	// Close generation counter first (best effort)
	if a.gens != nil {
		_ = a.gens.Close(ctx)
	}
	if a.reg != nil {
		return a.reg.Close(ctx)
	}
	return nil
}

// Client is one open client connection (a tab, a session). It routes
// requests through the version it is pinned to.
type Client struct {
	id string
	a  *Agent

	mu     sync.RWMutex
	ref    *storeRef // nil => uncontrolled, plain network
	closed bool
}

// ID returns the identifier the client connected with.
func (c *Client) ID() string { return c.id }

// Version returns the version this client is pinned to.
func (c *Client) Version() (Version, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ref == nil {
		return Version{}, false
	}
	return c.ref.ver, true
}

func (c *Client) repoint(ref *storeRef) {
	c.mu.Lock()
	c.ref = ref
	c.mu.Unlock()
}

// Request executes the policy for req against this client's pinned version.
// Uncontrolled clients fetch directly from the network.
func (c *Client) Request(ctx context.Context, req Request) (*Response, error) {
	c.mu.RLock()
	ref := c.ref
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ref == nil {
		return c.a.fetch.Fetch(ctx, req)
	}
	return c.a.execute(ctx, ref, req)
}

// Close disconnects the client. The last client of a retired version
// triggers that store's eviction.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.a.disconnect(c)
}
