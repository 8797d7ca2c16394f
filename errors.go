package offcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveVersion is returned by the request path before any version
	// has been activated (or resumed).
	ErrNoActiveVersion = errors.New("offcache: no active version")

	// ErrNotInstalled is returned by activation when no version has been
	// installed yet.
	ErrNotInstalled = errors.New("offcache: no installed version to activate")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("offcache: agent closed")

	// errStoreRejected: a precache write was refused under pressure.
	errStoreRejected = errors.New("offcache: store rejected write")
)

// PrecacheError reports an aborted install: one manifest URL could not be
// fetched or stored. The previous version stays authoritative; the partially
// populated store for Version has been removed.
type PrecacheError struct {
	Version string // store name, "<app>-v<gen>"
	URL     string
	Status  int // non-zero when the fetch succeeded with an error status
	Err     error
}

func (e *PrecacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precache %s: fetch %q: %v", e.Version, e.URL, e.Err)
	}
	return fmt.Sprintf("precache %s: fetch %q: status %d", e.Version, e.URL, e.Status)
}

func (e *PrecacheError) Unwrap() error { return e.Err }
