package auction

import (
	"sort"
	"sync"

	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// Whitelist restricts which resolvers may bid. A disabled whitelist admits
// every bidder. Only the admin may change membership.
type Whitelist struct {
	mu      sync.RWMutex
	admin   ledger.Identity
	enabled bool
	members map[ledger.Identity]struct{}
}

// NewWhitelist creates a whitelist managed by admin.
func NewWhitelist(admin ledger.Identity, enabled bool, members ...ledger.Identity) *Whitelist {
	w := &Whitelist{
		admin:   admin,
		enabled: enabled,
		members: make(map[ledger.Identity]struct{}, len(members)),
	}
	for _, m := range members {
		if !m.IsZero() {
			w.members[m] = struct{}{}
		}
	}
	return w
}

// Enabled reports whether membership is enforced.
func (w *Whitelist) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// Add admits id.
func (w *Whitelist) Add(caller, id ledger.Identity) error {
	if caller != w.admin || caller.IsZero() {
		return ErrUnauthorized
	}
	if id.IsZero() {
		return ErrInvalidParameter
	}
	w.mu.Lock()
	w.members[id] = struct{}{}
	w.mu.Unlock()
	return nil
}

// Remove revokes id.
func (w *Whitelist) Remove(caller, id ledger.Identity) error {
	if caller != w.admin || caller.IsZero() {
		return ErrUnauthorized
	}
	w.mu.Lock()
	delete(w.members, id)
	w.mu.Unlock()
	return nil
}

// Contains reports whether id is a member.
func (w *Whitelist) Contains(id ledger.Identity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.members[id]
	return ok
}

// Allows reports whether id may bid.
func (w *Whitelist) Allows(id ledger.Identity) bool {
	if w == nil || !w.Enabled() {
		return true
	}
	return w.Contains(id)
}

// List returns the members, sorted.
func (w *Whitelist) List() []ledger.Identity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ledger.Identity, 0, len(w.members))
	for id := range w.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
