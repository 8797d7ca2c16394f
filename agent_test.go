package offcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/unkn0wn-root/offcache/registry"
)

var errNetDown = errors.New("connect: network is unreachable")

// fakeFetcher serves canned bodies per URL and counts fetches. offline
// simulates total connectivity loss; fail simulates per-URL failures; gate,
// when set, blocks every fetch until the channel is closed (slow network).
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string][]byte
	fail    map[string]bool
	offline bool
	gate    chan struct{}
	calls   map[string]int
}

var _ Fetcher = (*fakeFetcher)(nil)

func newFakeFetcher(pages map[string][]byte) *fakeFetcher {
	return &fakeFetcher{
		pages: pages,
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls[req.URL]++
	offline := f.offline
	failed := f.fail[req.URL]
	gate := f.gate
	body, ok := f.pages[req.URL]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if offline || failed {
		return nil, errNetDown
	}
	if !ok {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")
	return &Response{
		Status: http.StatusOK,
		Header: h,
		Body:   append([]byte(nil), body...),
		Source: SourceNetwork,
	}, nil
}

func (f *fakeFetcher) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeFetcher) setPage(url string, body []byte) {
	f.mu.Lock()
	f.pages[url] = body
	f.mu.Unlock()
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// recHooks records hook events for assertions.
type recHooks struct {
	NopHooks
	mu       sync.Mutex
	stale    []string
	selfHeal []string
	deferred []string
	evicted  []string
}

func (h *recHooks) StaleServed(key, policy string) {
	h.mu.Lock()
	h.stale = append(h.stale, key+"|"+policy)
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(storeName, key, reason string) {
	h.mu.Lock()
	h.selfHeal = append(h.selfHeal, key+"|"+reason)
	h.mu.Unlock()
}

func (h *recHooks) TakeoverDeferred(name string, clients int) {
	h.mu.Lock()
	h.deferred = append(h.deferred, name)
	h.mu.Unlock()
}

func (h *recHooks) StoreEvicted(name string) {
	h.mu.Lock()
	h.evicted = append(h.evicted, name)
	h.mu.Unlock()
}

func testManifest() Manifest {
	return Manifest{
		Root:          "/",
		Routes:        []string{"/diagnose"},
		ModelTopology: "/static/model.json",
		ModelShards:   []string{"/static/model/shard1.bin"},
		RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js", Pin: "4.17.0"},
	}
}

func testPages() map[string][]byte {
	return map[string][]byte{
		"/":                        []byte("<html>shell v1</html>"),
		"/diagnose":                []byte("<html>diagnose v1</html>"),
		"/static/model.json":       []byte(`{"weightsManifest":[{"paths":["model/shard1.bin"]}]}`),
		"/static/model/shard1.bin": {0x01, 0x02, 0x03, 0x04},
		"https://cdn.example.com/tfjs/4.17.0/tf.min.js": []byte("/* tfjs */"),
	}
}

func newTestAgent(t *testing.T, mut func(*Options)) (*Agent, *fakeFetcher, *registry.Local) {
	t.Helper()
	reg := registry.NewLocal(nil)
	ff := newFakeFetcher(testPages())
	opts := Options{
		App:      "leafdoc",
		Manifest: testManifest(),
		Registry: reg,
		Fetcher:  ff,
	}
	if mut != nil {
		mut(&opts)
	}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, ff, reg
}

func installAndActivate(t *testing.T, a *Agent) Version {
	t.Helper()
	ctx := context.Background()
	v, err := a.OnInstall(ctx)
	if err != nil {
		t.Fatalf("OnInstall: %v", err)
	}
	if err := a.OnActivate(ctx); err != nil {
		t.Fatalf("OnActivate: %v", err)
	}
	return v
}

// ==============================
// Lifecycle
// ==============================

// TestInstallActivateOfflineShard is the end-to-end property: after a
// successful install+activate with the network up, a model shard request
// with the network down returns the previously cached bytes unchanged.
func TestInstallActivateOfflineShard(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)

	v := installAndActivate(t, a)
	if v.Name() != "leafdoc-v1" {
		t.Fatalf("first install should be v1, got %q", v.Name())
	}

	ff.setOffline(true)

	resp, err := a.OnRequest(ctx, Request{URL: "/static/model/shard1.bin"})
	if err != nil {
		t.Fatalf("OnRequest offline: %v", err)
	}
	if resp.Source != SourceCache {
		t.Fatalf("expected cache hit, got source %v", resp.Source)
	}
	if !bytes.Equal(resp.Body, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("shard bytes changed: %x", resp.Body)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status: %d", resp.Status)
	}

	// offline navigation to a precached route also works
	nav, err := a.OnRequest(ctx, Request{URL: "/diagnose", Navigate: true})
	if err != nil {
		t.Fatalf("offline navigation: %v", err)
	}
	if nav.Source != SourceStale {
		t.Fatalf("expected stale fallback, got %v", nav.Source)
	}
	if !bytes.Equal(nav.Body, []byte("<html>diagnose v1</html>")) {
		t.Fatalf("navigation body: %s", nav.Body)
	}
}

func TestOnRequestBeforeActivate(t *testing.T) {
	a, _, _ := newTestAgent(t, nil)
	if _, err := a.OnRequest(context.Background(), Request{URL: "/"}); !errors.Is(err, ErrNoActiveVersion) {
		t.Fatalf("expected ErrNoActiveVersion, got %v", err)
	}
}

func TestActivateWithoutInstall(t *testing.T) {
	a, _, _ := newTestAgent(t, nil)
	if err := a.OnActivate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

// Install is idempotent per generation: precaching the same manifest twice
// for the same generation yields exactly one entry per URL.
func TestPrecacheIdempotent(t *testing.T) {
	ctx := context.Background()
	a, _, reg := newTestAgent(t, nil)

	if _, err := a.Precache(ctx, 1); err != nil {
		t.Fatalf("Precache #1: %v", err)
	}
	if _, err := a.Precache(ctx, 1); err != nil {
		t.Fatalf("Precache #2: %v", err)
	}

	store, err := reg.Open(ctx, "leafdoc-v1")
	if err != nil {
		t.Fatal(err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(testManifest().URLs()); len(keys) != want {
		t.Fatalf("expected %d entries, got %d: %v", want, len(keys), keys)
	}
}

// A single unfetchable manifest URL aborts the install: the fresh store is
// removed and the prior version stays authoritative.
func TestPrecacheFailureKeepsPriorVersion(t *testing.T) {
	ctx := context.Background()
	a, ff, reg := newTestAgent(t, nil)

	installAndActivate(t, a)

	ff.mu.Lock()
	ff.fail["/static/model/shard1.bin"] = true
	ff.mu.Unlock()

	_, err := a.OnInstall(ctx)
	var pe *PrecacheError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PrecacheError, got %v", err)
	}
	if pe.URL != "/static/model/shard1.bin" || !errors.Is(err, errNetDown) {
		t.Fatalf("unexpected PrecacheError: %+v", pe)
	}

	if v, ok := a.Active(); !ok || v.Name() != "leafdoc-v1" {
		t.Fatalf("prior version should stay active, got %v %v", v, ok)
	}
	names, err := reg.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "leafdoc-v1" {
		t.Fatalf("aborted store should be removed, names=%v", names)
	}

	// offline serving still works off v1
	ff.setOffline(true)
	resp, err := a.OnRequest(ctx, Request{URL: "/static/model/shard1.bin"})
	if err != nil || resp.Source != SourceCache {
		t.Fatalf("v1 should still serve: %v %v", resp, err)
	}
}

func TestPrecacheFailsOnErrorStatus(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)

	ff.mu.Lock()
	delete(ff.pages, "/diagnose") // fetcher answers 404
	ff.mu.Unlock()

	_, err := a.OnInstall(ctx)
	var pe *PrecacheError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PrecacheError, got %v", err)
	}
	if pe.URL != "/diagnose" || pe.Status != http.StatusNotFound {
		t.Fatalf("unexpected PrecacheError: %+v", pe)
	}
}

// After activate(v2), no store other than v2's remains retrievable by name.
func TestActivateEvictsRetiredStores(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	a, _, reg := newTestAgent(t, func(o *Options) { o.Hooks = hooks })

	installAndActivate(t, a)
	installAndActivate(t, a)

	names, err := reg.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "leafdoc-v2" {
		t.Fatalf("expected only leafdoc-v2, got %v", names)
	}

	hooks.mu.Lock()
	evicted := append([]string(nil), hooks.evicted...)
	hooks.mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "leafdoc-v1" {
		t.Fatalf("expected eviction of leafdoc-v1, got %v", evicted)
	}
}

// Foreign stores in a shared registry are not touched by activation.
func TestActivateLeavesForeignStores(t *testing.T) {
	ctx := context.Background()
	a, _, reg := newTestAgent(t, nil)

	if _, err := reg.Open(ctx, "otherapp-v3"); err != nil {
		t.Fatal(err)
	}
	installAndActivate(t, a)

	names, err := reg.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"leafdoc-v1", "otherapp-v3"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("names=%v want %v", names, want)
	}
}

// ==============================
// Cache-first (model assets)
// ==============================

// Cache-first never issues a network fetch when the key is present.
func TestCacheFirstHitNoFetch(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	const shard = "/static/model/shard1.bin"
	installs := ff.count(shard) // fetched once during precache

	for i := 0; i < 3; i++ {
		resp, err := a.OnRequest(ctx, Request{URL: shard})
		if err != nil {
			t.Fatalf("OnRequest: %v", err)
		}
		if resp.Source != SourceCache {
			t.Fatalf("expected cache, got %v", resp.Source)
		}
	}
	if got := ff.count(shard); got != installs {
		t.Fatalf("cache-first hit fetched the network: %d -> %d", installs, got)
	}
}

// Cache-first miss performs exactly one fetch and writes through.
func TestCacheFirstMissWritesThrough(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	const shard2 = "/static/model/shard2.bin"
	ff.setPage(shard2, []byte{0xCA, 0xFE})

	resp, err := a.OnRequest(ctx, Request{URL: shard2})
	if err != nil {
		t.Fatalf("miss fetch: %v", err)
	}
	if resp.Source != SourceNetwork || ff.count(shard2) != 1 {
		t.Fatalf("expected one network fetch, got source=%v count=%d", resp.Source, ff.count(shard2))
	}

	// repeat load is served locally, even offline
	ff.setOffline(true)
	resp2, err := a.OnRequest(ctx, Request{URL: shard2})
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if resp2.Source != SourceCache || !bytes.Equal(resp2.Body, []byte{0xCA, 0xFE}) {
		t.Fatalf("write-through missing: %v %x", resp2.Source, resp2.Body)
	}
	if ff.count(shard2) != 1 {
		t.Fatalf("extra fetch after write-through: %d", ff.count(shard2))
	}
}

// An uncached model shard with no connectivity is a real failure: the fetch
// error propagates unmodified.
func TestCacheFirstMissOfflinePropagates(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	ff.setOffline(true)
	_, err := a.OnRequest(ctx, Request{URL: "/static/model/shard9.bin"})
	if !errors.Is(err, errNetDown) {
		t.Fatalf("expected propagated network error, got %v", err)
	}
}

// ==============================
// Network-first (navigations)
// ==============================

// The freshest UI wins when the network answers, and the network response
// is not written back into the store.
func TestNetworkFirstPrefersNetworkWithoutWriteBack(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	ff.setPage("/", []byte("<html>shell v2</html>"))

	resp, err := a.OnRequest(ctx, Request{URL: "/", Navigate: true})
	if err != nil {
		t.Fatalf("online navigation: %v", err)
	}
	if resp.Source != SourceNetwork || !bytes.Equal(resp.Body, []byte("<html>shell v2</html>")) {
		t.Fatalf("expected fresh network body, got %v %s", resp.Source, resp.Body)
	}

	// cache still holds the install-time snapshot
	ff.setOffline(true)
	stale, err := a.OnRequest(ctx, Request{URL: "/", Navigate: true})
	if err != nil {
		t.Fatalf("offline fallback: %v", err)
	}
	if !bytes.Equal(stale.Body, []byte("<html>shell v1</html>")) {
		t.Fatalf("network-first must not write back; got %s", stale.Body)
	}
}

func TestNetworkFirstOfflineFallback(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	a, ff, _ := newTestAgent(t, func(o *Options) { o.Hooks = hooks })
	installAndActivate(t, a)

	ff.setOffline(true)
	resp, err := a.OnRequest(ctx, Request{URL: "/diagnose", Navigate: true})
	if err != nil {
		t.Fatalf("expected cached fallback, got error %v", err)
	}
	if resp.Source != SourceStale {
		t.Fatalf("expected stale source, got %v", resp.Source)
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.stale) != 1 || hooks.stale[0] != "GET /diagnose|network_first" {
		t.Fatalf("StaleServed not observed: %v", hooks.stale)
	}
}

func TestNetworkFirstOfflineUncachedPropagates(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	ff.setOffline(true)
	_, err := a.OnRequest(ctx, Request{URL: "/settings", Navigate: true})
	if !errors.Is(err, errNetDown) {
		t.Fatalf("expected propagated failure, got %v", err)
	}
}

// ==============================
// Stale-while-revalidate (everything else)
// ==============================

// SWR returns the cached value immediately - bounded latency independent of
// a slow network - and issues exactly one background refresh.
func TestSWRImmediateReturnAndSingleRefresh(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	// "/" without navigation intent is ClassOther; it was precached.
	base := ff.count("/")

	ff.setPage("/", []byte("<html>shell v2</html>"))
	gate := make(chan struct{})
	ff.mu.Lock()
	ff.gate = gate // every network fetch now blocks
	ff.mu.Unlock()

	resp, err := a.OnRequest(ctx, Request{URL: "/"})
	if err != nil {
		t.Fatalf("swr hit: %v", err)
	}
	if resp.Source != SourceCache || !bytes.Equal(resp.Body, []byte("<html>shell v1</html>")) {
		t.Fatalf("swr must serve cached immediately, got %v %s", resp.Source, resp.Body)
	}

	close(gate)
	a.bg.Wait()

	if got := ff.count("/"); got != base+1 {
		t.Fatalf("expected exactly one background refresh, got %d extra", got-base)
	}

	// the refresh replaced the entry for next time
	ff.setOffline(true)
	next, err := a.OnRequest(ctx, Request{URL: "/", Navigate: true})
	if err != nil {
		t.Fatalf("offline after refresh: %v", err)
	}
	if !bytes.Equal(next.Body, []byte("<html>shell v2</html>")) {
		t.Fatalf("revalidation did not refresh entry: %s", next.Body)
	}
}

// The SWR miss path does not persist by default.
func TestSWRMissNotPersistedByDefault(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	const css = "/static/style.css"
	ff.setPage(css, []byte("body{}"))

	for i := 1; i <= 2; i++ {
		resp, err := a.OnRequest(ctx, Request{URL: css})
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.Source != SourceNetwork {
			t.Fatalf("request %d should be a network miss, got %v", i, resp.Source)
		}
	}
	if ff.count(css) != 2 {
		t.Fatalf("default miss path must not persist; count=%d", ff.count(css))
	}
}

// With PersistRevalidateMiss the fallback fetch is written through.
func TestSWRMissPersistedWhenEnabled(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, func(o *Options) { o.PersistRevalidateMiss = true })
	installAndActivate(t, a)

	const css = "/static/style.css"
	ff.setPage(css, []byte("body{}"))

	if _, err := a.OnRequest(ctx, Request{URL: css}); err != nil {
		t.Fatalf("miss: %v", err)
	}
	resp, err := a.OnRequest(ctx, Request{URL: css})
	if err != nil {
		t.Fatalf("hit: %v", err)
	}
	if resp.Source != SourceCache {
		t.Fatalf("expected persisted entry to hit, got %v", resp.Source)
	}
	a.bg.Wait() // drain the hit's background refresh
}

// Serving a cached entry while refreshing behind the caller's back is an
// observable stale outcome, same as the network-first fallback.
func TestSWRHitEmitsStaleServed(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	a, _, _ := newTestAgent(t, func(o *Options) { o.Hooks = hooks })
	installAndActivate(t, a)

	// "/" without navigation intent is ClassOther and was precached.
	resp, err := a.OnRequest(ctx, Request{URL: "/"})
	if err != nil {
		t.Fatalf("swr hit: %v", err)
	}
	if resp.Source != SourceCache {
		t.Fatalf("expected cache, got %v", resp.Source)
	}
	a.bg.Wait()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.stale) != 1 || hooks.stale[0] != "GET /|swr" {
		t.Fatalf("StaleServed not emitted on swr hit: %v", hooks.stale)
	}
}

// A failing background refresh is swallowed: the caller already has a
// response, and the cached entry survives.
func TestSWRRevalidateFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	ff.setOffline(true)

	resp, err := a.OnRequest(ctx, Request{URL: "/"})
	if err != nil {
		t.Fatalf("swr hit with network down: %v", err)
	}
	if resp.Source != SourceCache {
		t.Fatalf("expected cache, got %v", resp.Source)
	}
	a.bg.Wait()

	// still served after the failed refresh
	again, err := a.OnRequest(ctx, Request{URL: "/"})
	if err != nil || again.Source != SourceCache {
		t.Fatalf("entry should survive failed refresh: %v %v", again, err)
	}
	a.bg.Wait()
}

// ==============================
// Self-heal
// ==============================

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	a, ff, reg := newTestAgent(t, func(o *Options) { o.Hooks = hooks })
	installAndActivate(t, a)

	const shard = "/static/model/shard1.bin"
	key := Request{URL: shard}.Key()

	store, err := reg.Open(ctx, "leafdoc-v1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Set(ctx, key, []byte("not-wire-format")); err != nil {
		t.Fatalf("inject corrupt: %v", err)
	}

	resp, err := a.OnRequest(ctx, Request{URL: shard})
	if err != nil {
		t.Fatalf("request over corrupt entry: %v", err)
	}
	if resp.Source != SourceNetwork {
		t.Fatalf("corrupt entry should miss to network, got %v", resp.Source)
	}

	hooks.mu.Lock()
	healed := len(hooks.selfHeal)
	hooks.mu.Unlock()
	if healed != 1 {
		t.Fatalf("SelfHeal not observed: %d", healed)
	}

	// re-fetched entry is valid again
	ff.setOffline(true)
	resp2, err := a.OnRequest(ctx, Request{URL: shard})
	if err != nil || resp2.Source != SourceCache {
		t.Fatalf("self-heal did not restore entry: %v %v", resp2, err)
	}
}

// ==============================
// Clients and takeover
// ==============================

func TestUncontrolledClientFetchesNetwork(t *testing.T) {
	ctx := context.Background()
	a, ff, _ := newTestAgent(t, nil)

	c, err := a.Connect("tab1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Request(ctx, Request{URL: "/"})
	if err != nil {
		t.Fatalf("uncontrolled request: %v", err)
	}
	if resp.Source != SourceNetwork || ff.count("/") != 1 {
		t.Fatalf("uncontrolled client must hit the network: %v %d", resp.Source, ff.count("/"))
	}
}

// Eager takeover repoints open clients at activation, then evicts.
func TestEagerTakeoverRepointsClients(t *testing.T) {
	ctx := context.Background()
	a, _, reg := newTestAgent(t, nil)
	installAndActivate(t, a)

	c, err := a.Connect("tab1")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if v, ok := c.Version(); !ok || v.Gen != 1 {
		t.Fatalf("client should pin v1, got %v %v", v, ok)
	}

	installAndActivate(t, a)

	if v, ok := c.Version(); !ok || v.Gen != 2 {
		t.Fatalf("eager takeover should repoint client to v2, got %v %v", v, ok)
	}
	names, err := reg.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "leafdoc-v2" {
		t.Fatalf("v1 should be evicted, names=%v", names)
	}
}

// Deferred takeover leaves connected clients on their version and evicts a
// retired store only when its last client disconnects.
func TestDeferredTakeoverDrainsBeforeEviction(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	a, _, reg := newTestAgent(t, func(o *Options) {
		o.DeferTakeover = true
		o.Hooks = hooks
	})
	installAndActivate(t, a)

	c, err := a.Connect("tab1")
	if err != nil {
		t.Fatal(err)
	}
	installAndActivate(t, a)

	if v, ok := c.Version(); !ok || v.Gen != 1 {
		t.Fatalf("deferred takeover must keep client on v1, got %v %v", v, ok)
	}
	names, _ := reg.Names(ctx)
	if len(names) != 2 {
		t.Fatalf("v1 must survive while pinned, names=%v", names)
	}
	hooks.mu.Lock()
	deferred := append([]string(nil), hooks.deferred...)
	hooks.mu.Unlock()
	if len(deferred) != 1 || deferred[0] != "leafdoc-v1" {
		t.Fatalf("TakeoverDeferred not observed: %v", deferred)
	}

	// client still serves from v1 while the new version is active
	resp, err := c.Request(ctx, Request{URL: "/static/model/shard1.bin"})
	if err != nil || resp.Source != SourceCache {
		t.Fatalf("pinned client read failed: %v %v", resp, err)
	}

	// new connections get v2
	c2, err := a.Connect("tab2")
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if v, ok := c2.Version(); !ok || v.Gen != 2 {
		t.Fatalf("new client should pin v2, got %v %v", v, ok)
	}

	// last v1 client leaving triggers the eviction
	c.Close()
	names, _ = reg.Names(ctx)
	if len(names) != 1 || names[0] != "leafdoc-v2" {
		t.Fatalf("drained store should be evicted, names=%v", names)
	}
}

// Pin accounting stays exact when an eager takeover races client
// disconnects: a client repointed mid-close must drain the store it is
// pinned to now, not the one it held when Close started. Once every client
// has left, no store carries a leftover pin.
func TestPinAccountingUnderTakeoverChurn(t *testing.T) {
	a, _, _ := newTestAgent(t, nil)
	installAndActivate(t, a)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		c, err := a.Connect(fmt.Sprintf("tab%d", i))
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	installAndActivate(t, a) // repoints whatever clients are still open
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.clients) != 0 {
		t.Fatalf("clients leaked: %d", len(a.clients))
	}
	if len(a.pinned) != 0 {
		t.Fatalf("pinned map not drained: %v", a.pinned)
	}
}

// ==============================
// Resume
// ==============================

// A fresh agent over the same registry adopts the newest persisted store
// without any network traffic.
func TestResumeAdoptsNewestStore(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewLocal(nil)
	ff := newFakeFetcher(testPages())

	a1, err := New(Options{App: "leafdoc", Manifest: testManifest(), Registry: reg, Fetcher: ff})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a1.Precache(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := a1.Precache(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := a1.OnActivate(ctx); err != nil {
		t.Fatal(err)
	}

	ff2 := newFakeFetcher(testPages())
	ff2.setOffline(true)
	a2, err := New(Options{App: "leafdoc", Manifest: testManifest(), Registry: reg, Fetcher: ff2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a2.Close(context.Background()) })

	v, ok, err := a2.Resume(ctx)
	if err != nil || !ok {
		t.Fatalf("Resume: %v %v", ok, err)
	}
	if v.Gen != 2 {
		t.Fatalf("Resume should adopt newest generation, got %v", v)
	}

	resp, err := a2.OnRequest(ctx, Request{URL: "/static/model/shard1.bin"})
	if err != nil || resp.Source != SourceCache {
		t.Fatalf("resumed agent should serve offline: %v %v", resp, err)
	}
}

func TestResumeNothingToAdopt(t *testing.T) {
	a, _, _ := newTestAgent(t, nil)
	if _, ok, err := a.Resume(context.Background()); err != nil || ok {
		t.Fatalf("expected no store to resume, got ok=%v err=%v", ok, err)
	}
}
