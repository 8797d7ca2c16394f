package offcache

import "testing"

func testClassifier() Classifier {
	return Classifier{
		ShardMarker:    "/static/model/",
		Topology:       "/static/model.json",
		RuntimeScripts: []string{"https://cdn.example.com/tfjs/4.17.0/tf.min.js"},
	}
}

func TestClassifyTable(t *testing.T) {
	cls := testClassifier()

	cases := []struct {
		name string
		req  Request
		want Classification
	}{
		{"shard", Request{URL: "/static/model/shard1.bin"}, ClassModelAsset},
		{"shard_with_query", Request{URL: "/static/model/shard2.bin?rev=3"}, ClassModelAsset},
		{"topology", Request{URL: "/static/model.json"}, ClassModelAsset},
		{"runtime_script", Request{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js"}, ClassModelAsset},
		{"navigation_root", Request{URL: "/", Navigate: true}, ClassNavigation},
		{"navigation_route", Request{URL: "/diagnose", Navigate: true}, ClassNavigation},
		{"stylesheet", Request{URL: "/static/style.css"}, ClassOther},
		{"icon", Request{URL: "/static/favicon.ico"}, ClassOther},
		{"small_script", Request{URL: "/static/app.js"}, ClassOther},
		// immutability takes precedence over navigation intent
		{"shard_with_navigate", Request{URL: "/static/model/shard1.bin", Navigate: true}, ClassModelAsset},
		{"topology_with_navigate", Request{URL: "/static/model.json", Navigate: true}, ClassModelAsset},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cls.Classify(tc.req); got != tc.want {
				t.Fatalf("Classify(%q) = %v, want %v", tc.req.URL, got, tc.want)
			}
		})
	}
}

func TestClassifyIsPureOfMethod(t *testing.T) {
	cls := testClassifier()
	for _, m := range []string{"", "GET", "HEAD", "POST"} {
		got := cls.Classify(Request{Method: m, URL: "/static/model/shard1.bin"})
		if got != ClassModelAsset {
			t.Fatalf("method %q changed classification: %v", m, got)
		}
	}
}

func TestDefaultClassifierFromManifest(t *testing.T) {
	m := Manifest{
		Root:          "/",
		ModelTopology: "/static/model.json",
		ModelShards:   []string{"/static/model/shard1.bin"},
		RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js", Pin: "4.17.0"},
	}
	cls := DefaultClassifier(m)

	// shard marker defaults to "/model/" when shards are listed
	if got := cls.Classify(Request{URL: "/static/model/shard9.bin"}); got != ClassModelAsset {
		t.Fatalf("default marker did not match shard: %v", got)
	}
	if got := cls.Classify(Request{URL: "/static/model.json"}); got != ClassModelAsset {
		t.Fatalf("topology not matched: %v", got)
	}
	if got := cls.Classify(Request{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js"}); got != ClassModelAsset {
		t.Fatalf("runtime script not matched: %v", got)
	}
}
