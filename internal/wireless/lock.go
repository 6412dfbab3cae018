package wireless

import (
	"fmt"
	"strings"
	"sync"
)

// BusyError reports that another capture holds the interface. The
// caller may retry after backoff; the lock clears when the holding
// module releases it.
type BusyError struct {
	Interface string
	Owner     string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("wireless: interface %s busy: held by %s", e.Interface, e.Owner)
}

// LockTable is the advisory per-interface lock. One wireless adapter
// cannot serve two concurrent captures, so a module holds the lock from
// monitor mode switch until its capture stages end. The table is
// process-wide state shared by all sessions.
type LockTable struct {
	mu   sync.Mutex
	held map[string]string // interface -> owner
}

func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]string)}
}

// Acquire claims iface for owner. A second acquire by the same owner is
// idempotent; anyone else gets a BusyError.
func (l *LockTable) Acquire(iface, owner string) error {
	key := lockKey(iface)
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.held[key]; ok && holder != owner {
		return &BusyError{Interface: iface, Owner: holder}
	}
	l.held[key] = owner
	return nil
}

// Release drops the claim. Only the owner can release; a stale release
// from a finished module must not free someone else's lock.
func (l *LockTable) Release(iface, owner string) {
	key := lockKey(iface)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == owner {
		delete(l.held, key)
	}
}

// Holder reports who holds iface, if anyone.
func (l *LockTable) Holder(iface string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.held[lockKey(iface)]
	return owner, ok
}

func lockKey(iface string) string { return strings.ToLower(iface) }
