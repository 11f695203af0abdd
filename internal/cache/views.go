package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"crm-api/internal/undo"
)

// loadTimeout bounds a load that outlives the request that started it.
const loadTimeout = 30 * time.Second

// Loader fetches the full record set for a tenant.
type Loader[T any] func(ctx context.Context, tenantID string) ([]T, error)

// ExcludeFunc reports whether a record must stay hidden after a reload.
type ExcludeFunc func(tenantID, recordID string) bool

// Views keeps one visible List per tenant, loaded lazily and refreshed after
// the TTL. A List is never swapped out once created, so collaborators can hold
// on to it.
type Views[T undo.Record[T]] struct {
	load    Loader[T]
	ttl     time.Duration
	exclude ExcludeFunc
	now     func() time.Time

	mu    sync.Mutex
	lists map[string]*List[T]
	group singleflight.Group

	// Loads are numbered when they start; applyMu and applied keep an older
	// load from overwriting a newer one that finished first.
	seq     atomic.Uint64
	applyMu sync.Mutex
	applied map[string]uint64
}

type Option[T undo.Record[T]] func(*Views[T])

func WithExclude[T undo.Record[T]](fn ExcludeFunc) Option[T] {
	return func(v *Views[T]) { v.exclude = fn }
}

func WithClock[T undo.Record[T]](now func() time.Time) Option[T] {
	return func(v *Views[T]) { v.now = now }
}

func NewViews[T undo.Record[T]](load Loader[T], ttl time.Duration, opts ...Option[T]) *Views[T] {
	v := &Views[T]{
		load:  load,
		ttl:   ttl,
		now:   time.Now,
		lists:   map[string]*List[T]{},
		applied: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// List returns the tenant's list without loading it.
func (v *Views[T]) List(tenantID string) *List[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	list, ok := v.lists[tenantID]
	if !ok {
		list = NewList[T]()
		v.lists[tenantID] = list
	}
	return list
}

// Get returns the tenant's list, loading it first when it was never loaded,
// is older than the TTL, or refresh is set. Concurrent loads for the same
// tenant share one call to the loader, which runs detached from any single
// caller's cancellation. A refresh never joins a load that started before it.
func (v *Views[T]) Get(ctx context.Context, tenantID string, refresh bool) (*List[T], error) {
	list := v.List(tenantID)
	if !refresh && !v.stale(list) {
		return list, nil
	}

	if refresh {
		v.group.Forget(tenantID)
	}
	loadCtx := context.WithoutCancel(ctx)
	results := v.group.DoChan(tenantID, func() (any, error) {
		// Another caller may have finished a load while this one was waiting.
		if !refresh && !v.stale(list) {
			return nil, nil
		}
		return nil, v.reload(loadCtx, tenantID, list)
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return nil, fmt.Errorf("load view for tenant %s: %w", tenantID, res.Err)
		}
		return list, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load view for tenant %s: %w", tenantID, ctx.Err())
	}
}

func (v *Views[T]) reload(ctx context.Context, tenantID string, list *List[T]) error {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	seq := v.seq.Add(1)
	records, err := v.load(ctx, tenantID)
	if err != nil {
		return err
	}

	var exclude func(string) bool
	if v.exclude != nil {
		exclude = func(recordID string) bool { return v.exclude(tenantID, recordID) }
	}

	v.applyMu.Lock()
	defer v.applyMu.Unlock()
	if seq < v.applied[tenantID] {
		return nil
	}
	v.applied[tenantID] = seq
	list.Replace(records, exclude, v.now())
	return nil
}

// Invalidate forces the next Get for the tenant to reload.
func (v *Views[T]) Invalidate(tenantID string) {
	v.mu.Lock()
	list, ok := v.lists[tenantID]
	v.mu.Unlock()

	if ok {
		list.expire()
	}
}

func (v *Views[T]) stale(list *List[T]) bool {
	loadedAt := list.LoadedAt()
	if loadedAt.IsZero() {
		return true
	}
	return v.ttl > 0 && v.now().Sub(loadedAt) >= v.ttl
}
