package backup

import (
	"sync"

	"github.com/google/uuid"
)

// TenantLocks lets one backup or restore run per tenant at a time within the process.
// Runs in other processes are not serialized.
type TenantLocks struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{active: make(map[uuid.UUID]struct{})}
}

// TryLock claims tenantID. The returned release func must be called once the operation
// ends; ok is false when another operation holds the tenant.
func (l *TenantLocks) TryLock(tenantID uuid.UUID) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[tenantID]; busy {
		return func() {}, false
	}
	l.active[tenantID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, tenantID)
			l.mu.Unlock()
		})
	}, true
}

// Busy reports whether tenantID is locked.
func (l *TenantLocks) Busy(tenantID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.active[tenantID]
	return busy
}
