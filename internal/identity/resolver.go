// Package identity decides which deviceId a connection speaks for.
package identity

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SyntheticPrefix marks ids the hub generated itself.
const SyntheticPrefix = "dev_"

const maxShortAttempts = 8

// Lookup reports whether an id is already taken.
type Lookup interface {
	Contains(deviceID string) bool
}

// Binding is the per-connection identity slot. The transport keeps one per
// connection for the connection's lifetime.
type Binding struct {
	mu sync.Mutex
	id string
}

// DeviceID returns the bound id, if any.
func (b *Binding) DeviceID() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id, b.id != ""
}

// Resolver assigns device ids. Client supplied ids are trusted verbatim.
type Resolver struct {
	lookup Lookup
	newID  func() string
}

// NewResolver creates a Resolver that avoids ids already known to lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup, newID: randomHex}
}

// Synthesize returns a fresh "dev_xxxxxxxx" id. The 8 hex chars come from a
// random UUID and are re-rolled on collision with a known id; after repeated
// collisions the full 32 hex chars are used.
func (r *Resolver) Synthesize() string {
	for i := 0; i < maxShortAttempts; i++ {
		id := SyntheticPrefix + r.newID()[:8]
		if r.lookup == nil || !r.lookup.Contains(id) {
			return id
		}
	}
	return SyntheticPrefix + r.newID()
}

// ForRegister resolves the id for a "register" message. An explicit id always
// wins and rebinds the connection; otherwise an already bound id is reused,
// and only an unbound connection gets a synthetic id.
func (r *Resolver) ForRegister(b *Binding, claimed string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case claimed != "":
		b.id = claimed
	case b.id == "":
		b.id = r.Synthesize()
	}
	return b.id
}

// ForSample resolves the id for a "sensor-data" message. The first
// resolution on a connection wins; later payload ids are ignored.
func (r *Resolver) ForSample(b *Binding, claimed string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.id != "" {
		return b.id
	}
	if claimed != "" {
		b.id = claimed
	} else {
		b.id = r.Synthesize()
	}
	return b.id
}

func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
