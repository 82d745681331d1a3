package reconciliation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// tenantLocks serialises batches per tenant while letting different tenants
// reconcile in parallel. Waiting honours context cancellation.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[uuid.UUID]chan struct{})}
}

func (l *tenantLocks) get(tenantID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[tenantID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[tenantID] = ch
	}
	return ch
}

// Lock blocks until the tenant is free or ctx is done. The returned func
// releases the lock.
func (l *tenantLocks) Lock(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := l.get(tenantID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
