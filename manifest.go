package offcache

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuntimeScript is a pinned third-party script (e.g. the inference runtime
// loaded from a CDN). The pin must appear in the URL; changing the pin
// requires a new cache version.
type RuntimeScript struct {
	URL string `yaml:"url"`
	Pin string `yaml:"pin"`
}

// Manifest is the fixed, ordered set of URLs that must be available offline.
// It is treated as one atomic unit at install time: if any member cannot be
// fetched, the install fails and the prior version stays authoritative.
type Manifest struct {
	// Root is the app shell document, usually "/".
	Root string `yaml:"root"`
	// Routes are the navigable pages served offline (e.g. "/diagnose").
	Routes []string `yaml:"routes"`
	// ModelTopology is the model topology file (e.g. "/static/model.json").
	ModelTopology string `yaml:"model_topology"`
	// ModelShards are the weight shard URLs.
	ModelShards []string `yaml:"model_shards"`
	// ShardMarker identifies shard URLs for classification; defaults to
	// "/model/" when shards are listed.
	ShardMarker string `yaml:"shard_marker"`
	// RuntimeScript is the pinned inference-runtime script.
	RuntimeScript RuntimeScript `yaml:"runtime_script"`
}

// Validate checks structural requirements: a root document, and an explicit
// version pin on the runtime script when one is listed.
func (m Manifest) Validate() error {
	if m.Root == "" {
		return fmt.Errorf("offcache: manifest root is required")
	}
	if m.RuntimeScript.URL != "" {
		if m.RuntimeScript.Pin == "" {
			return fmt.Errorf("offcache: runtime script %q needs a version pin", m.RuntimeScript.URL)
		}
		if !strings.Contains(m.RuntimeScript.URL, m.RuntimeScript.Pin) {
			return fmt.Errorf("offcache: runtime script %q does not carry pin %q",
				m.RuntimeScript.URL, m.RuntimeScript.Pin)
		}
	}
	return nil
}

// URLs returns the precache list in manifest order with duplicates collapsed
// (first occurrence wins).
func (m Manifest) URLs() []string {
	ordered := make([]string, 0, 4+len(m.Routes)+len(m.ModelShards))
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		ordered = append(ordered, u)
	}

	add(m.Root)
	for _, r := range m.Routes {
		add(r)
	}
	add(m.ModelTopology)
	for _, s := range m.ModelShards {
		add(s)
	}
	add(m.RuntimeScript.URL)
	return ordered
}

// shardMarker returns the effective marker for classification.
func (m Manifest) shardMarker() string {
	if m.ShardMarker != "" {
		return m.ShardMarker
	}
	if len(m.ModelShards) > 0 {
		return "/model/"
	}
	return ""
}

// LoadManifest reads a YAML manifest file and expands environment variables.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var m Manifest
	if err := yaml.Unmarshal([]byte(expanded), &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
