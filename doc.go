// Package offcache implements an offline-capable asset and inference
// delivery agent: a request-intercepting layer that keeps a hybrid
// online/offline client usable without connectivity by serving a locally
// stored inference model and UI assets from a managed, versioned cache.
//
// Components:
//   - registry.Registry: named, generation-tagged byte stores (one per
//     deployed cache version), pluggable backends (memory, BigCache,
//     Ristretto, SQLite, Redis).
//   - Manifest: the fixed URL set that must be available offline (UI shell,
//     navigable routes, model topology, weight shards, pinned runtime script).
//   - Classifier: maps a request to {ModelAsset, Navigation, Other}.
//   - Agent: executes one policy per class (cache-first, network-first,
//     stale-while-revalidate) and owns the install/activate lifecycle.
//
// Store names follow "<app>-v<generation>"; generations increase
// monotonically across deployments so activation can evict retired stores
// by name inequality alone.
//
// Lifecycle:
//
//	a, _ := offcache.New(offcache.Options{App: "leafdoc", Manifest: m})
//	v, _ := a.OnInstall(ctx)  // open <app>-vN, precache the manifest
//	_ = a.OnActivate(ctx)     // take over clients, evict retired stores
//	resp, _ := a.OnRequest(ctx, offcache.Request{URL: "/static/model.json"})
package offcache
