package offcache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestManifestURLsOrderAndDedup(t *testing.T) {
	m := Manifest{
		Root:          "/",
		Routes:        []string{"/diagnose", "/", "/forum", "/diagnose"},
		ModelTopology: "/static/model.json",
		ModelShards:   []string{"/static/model/shard1.bin", "/static/model/shard1.bin", "/static/model/shard2.bin"},
		RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js", Pin: "4.17.0"},
	}

	want := []string{
		"/",
		"/diagnose",
		"/forum",
		"/static/model.json",
		"/static/model/shard1.bin",
		"/static/model/shard2.bin",
		"https://cdn.example.com/tfjs/4.17.0/tf.min.js",
	}
	if got := m.URLs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("URLs:\n got %v\nwant %v", got, want)
	}
}

func TestManifestValidate(t *testing.T) {
	t.Run("missing_root", func(t *testing.T) {
		if err := (Manifest{}).Validate(); err == nil {
			t.Fatalf("expected error for missing root")
		}
	})

	t.Run("script_without_pin", func(t *testing.T) {
		m := Manifest{
			Root:          "/",
			RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/tf.min.js"},
		}
		if err := m.Validate(); err == nil {
			t.Fatalf("expected error for unpinned runtime script")
		}
	})

	t.Run("pin_not_in_url", func(t *testing.T) {
		m := Manifest{
			Root:          "/",
			RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/tf.min.js", Pin: "4.17.0"},
		}
		if err := m.Validate(); err == nil {
			t.Fatalf("expected error when URL does not carry the pin")
		}
	})

	t.Run("ok", func(t *testing.T) {
		m := Manifest{
			Root:          "/",
			RuntimeScript: RuntimeScript{URL: "https://cdn.example.com/tfjs/4.17.0/tf.min.js", Pin: "4.17.0"},
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})
}

func TestLoadManifestExpandsEnv(t *testing.T) {
	t.Setenv("CDN_BASE", "https://cdn.example.com")

	yml := `
root: /
routes:
  - /diagnose
model_topology: /static/model.json
model_shards:
  - /static/model/shard1.bin
runtime_script:
  url: ${CDN_BASE}/tfjs/4.17.0/tf.min.js
  pin: "4.17.0"
`
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.RuntimeScript.URL != "https://cdn.example.com/tfjs/4.17.0/tf.min.js" {
		t.Fatalf("env not expanded: %q", m.RuntimeScript.URL)
	}
	want := []string{
		"/",
		"/diagnose",
		"/static/model.json",
		"/static/model/shard1.bin",
		"https://cdn.example.com/tfjs/4.17.0/tf.min.js",
	}
	if got := m.URLs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("URLs:\n got %v\nwant %v", got, want)
	}
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte("routes: [/a]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("expected validation error for manifest without root")
	}
}

func TestVersionNameRoundTrip(t *testing.T) {
	v := Version{App: "leafdoc", Gen: 7}
	if v.Name() != "leafdoc-v7" {
		t.Fatalf("Name: %q", v.Name())
	}
	got, ok := parseVersion("leafdoc", "leafdoc-v7")
	if !ok || got != v {
		t.Fatalf("parseVersion: %v %v", got, ok)
	}
	if _, ok := parseVersion("leafdoc", "other-v7"); ok {
		t.Fatalf("foreign name should not parse")
	}
	if _, ok := parseVersion("leafdoc", "leafdoc-vx"); ok {
		t.Fatalf("malformed generation should not parse")
	}
}
