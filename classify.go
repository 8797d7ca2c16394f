package offcache

import "strings"

// Classification is the policy class of an intercepted request.
// Derived structurally from the request, never stored.
type Classification int

const (
	// ClassOther: stylesheets, icons, small scripts. Stale-while-revalidate.
	ClassOther Classification = iota
	// ClassModelAsset: model weight shards, model topology, pinned
	// inference-runtime script. Large, content-addressed, effectively
	// immutable once published. Cache-first.
	ClassModelAsset
	// ClassNavigation: full-page document load. Network-first.
	ClassNavigation
)

func (c Classification) String() string {
	switch c {
	case ClassModelAsset:
		return "model_asset"
	case ClassNavigation:
		return "navigation"
	default:
		return "other"
	}
}

// Classifier maps a request to its Classification. Pure and total.
//
// A URL matching both a model marker and navigation intent is a ModelAsset:
// immutability takes precedence, model weights are never re-fetched
// speculatively.
type Classifier struct {
	// ShardMarker matches model weight shards by substring
	// (e.g. "/static/model/").
	ShardMarker string
	// Topology is the model topology URL (e.g. "/static/model.json").
	Topology string
	// RuntimeScripts are pinned inference-runtime script URLs.
	RuntimeScripts []string
}

// DefaultClassifier derives a Classifier from the asset manifest.
func DefaultClassifier(m Manifest) Classifier {
	c := Classifier{
		ShardMarker: m.shardMarker(),
		Topology:    m.ModelTopology,
	}
	if m.RuntimeScript.URL != "" {
		c.RuntimeScripts = []string{m.RuntimeScript.URL}
	}
	return c
}

// Classify returns the policy class for req.
func (c Classifier) Classify(req Request) Classification {
	u := req.URL
	if c.ShardMarker != "" && strings.Contains(u, c.ShardMarker) {
		return ClassModelAsset
	}
	if c.Topology != "" && strings.Contains(u, c.Topology) {
		return ClassModelAsset
	}
	for _, s := range c.RuntimeScripts {
		if s != "" && strings.Contains(u, s) {
			return ClassModelAsset
		}
	}
	if req.Navigate {
		return ClassNavigation
	}
	return ClassOther
}
