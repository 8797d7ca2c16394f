package offcache

import (
	"fmt"
	"strconv"
	"strings"
)

// Version identifies one deployed generation of cached content.
// Exactly one version serves a given client connection at a time.
type Version struct {
	App string
	Gen uint64
}

// Name returns the store name, "<app>-v<generation>".
func (v Version) Name() string {
	return fmt.Sprintf("%s-v%d", v.App, v.Gen)
}

// parseVersion inverts Name for stores belonging to app.
// Returns false for foreign or malformed names.
func parseVersion(app, name string) (Version, bool) {
	prefix := app + "-v"
	if !strings.HasPrefix(name, prefix) {
		return Version{}, false
	}
	gen, err := strconv.ParseUint(name[len(prefix):], 10, 64)
	if err != nil {
		return Version{}, false
	}
	return Version{App: app, Gen: gen}, true
}
