package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crm-api/internal/cache"
	"crm-api/internal/event"
	"crm-api/internal/model"
	"crm-api/internal/undo"
)

// ErrClosed is returned for deletions requested after Shutdown.
var ErrClosed = undo.ErrClosed

// DeletionOptions configures the undo window shared by every tenant.
type DeletionOptions struct {
	Window        time.Duration
	CommitTimeout time.Duration
	Scheduler     undo.Scheduler
	Observer      undo.Observer
	Logger        *slog.Logger
	// CommitMemory is how long committed ids stay hidden; zero uses the
	// coordinator default.
	CommitMemory time.Duration
}

// DeletionPayload is the body of deletion.* events.
type DeletionPayload[T any] struct {
	undo.Notification
	Record T `json:"record"`
}

type deleteRemover func(ctx context.Context, tenantID string, recordID string) error

type deleteRequest[T any] struct {
	actor  model.AuditActor
	record T
}

// deletionDesk runs one coordinator per tenant over that tenant's visible
// list and turns coordinator notifications into bus events and audit entries.
type deletionDesk[T undo.Record[T]] struct {
	kind        string
	label       string
	auditAction string
	opts        DeletionOptions
	views       *cache.Views[T]
	remove      deleteRemover
	bus         event.Bus
	audit       *AuditService

	mu     sync.RWMutex
	coords map[string]*undo.Coordinator[T]
	closed bool

	// requests holds who asked for each unresolved deletion, keyed by
	// tenant and record id, so the asynchronous commit can be attributed.
	requests sync.Map
}

func newDeletionDesk[T undo.Record[T]](kind string, label string, auditAction string, views *cache.Views[T], remove deleteRemover, bus event.Bus, audit *AuditService, opts DeletionOptions) *deletionDesk[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &deletionDesk[T]{
		kind:        kind,
		label:       label,
		auditAction: auditAction,
		opts:        opts,
		views:       views,
		remove:      remove,
		bus:         bus,
		audit:       audit,
		coords:      map[string]*undo.Coordinator[T]{},
	}
}

// Request opens an undo window for record on behalf of actor.
func (d *deletionDesk[T]) Request(tenantID string, actor model.AuditActor, record T) (undo.Pending[T], error) {
	coord, err := d.coordinator(tenantID)
	if err != nil {
		return undo.Pending[T]{}, err
	}

	key := requestKey(tenantID, record.RecordID())
	// Stored before RequestDelete because the pending notification fires
	// before it returns.
	_, loaded := d.requests.LoadOrStore(key, deleteRequest[T]{actor: actor, record: record.Clone()})

	pending, err := coord.RequestDelete(record)
	if err != nil && !errors.Is(err, undo.ErrDuplicatePendingDeletion) && !loaded {
		d.requests.Delete(key)
	}
	return pending, err
}

func (d *deletionDesk[T]) Undo(tenantID string, pendingID string) (undo.Pending[T], error) {
	coord, ok := d.lookup(tenantID)
	if !ok {
		return undo.Pending[T]{}, undo.ErrPendingNotFound
	}
	return coord.Undo(pendingID)
}

func (d *deletionDesk[T]) Pending(tenantID string) []undo.Pending[T] {
	coord, ok := d.lookup(tenantID)
	if !ok {
		return []undo.Pending[T]{}
	}
	return coord.List()
}

// IsHidden reports records inside their undo window or committed recently.
// It never blocks on a coordinator and is safe to call while the tenant's
// list is locked.
func (d *deletionDesk[T]) IsHidden(tenantID string, recordID string) bool {
	coord, ok := d.lookup(tenantID)
	return ok && coord.IsHidden(recordID)
}

// Shutdown commits every open deletion and rejects new ones.
func (d *deletionDesk[T]) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	coords := make(map[string]*undo.Coordinator[T], len(d.coords))
	for tenantID, coord := range d.coords {
		coords[tenantID] = coord
	}
	d.mu.Unlock()

	var g errgroup.Group
	for tenantID, coord := range coords {
		g.Go(func() error {
			if err := coord.Flush(ctx); err != nil {
				return fmt.Errorf("flush %s deletions for tenant %s: %w", d.kind, tenantID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *deletionDesk[T]) lookup(tenantID string) (*undo.Coordinator[T], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	coord, ok := d.coords[tenantID]
	return coord, ok
}

func (d *deletionDesk[T]) coordinator(tenantID string) (*undo.Coordinator[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if coord, ok := d.coords[tenantID]; ok {
		return coord, nil
	}
	if d.closed {
		return nil, ErrClosed
	}

	remove := func(ctx context.Context, recordID string) error {
		return d.remove(ctx, tenantID, recordID)
	}
	coord := undo.New(d.views.List(tenantID), remove, undo.Options{
		Kind:          d.kind,
		Label:         d.label,
		Window:        d.opts.Window,
		CommitTimeout: d.opts.CommitTimeout,
		CommitMemory:  d.opts.CommitMemory,
		Scheduler:     d.opts.Scheduler,
		Observer:      d.opts.Observer,
		Logger:        d.opts.Logger.With("tenant_id", tenantID),
		Notifier: undo.NotifierFunc(func(n undo.Notification) {
			d.deliver(tenantID, n)
		}),
	})
	d.coords[tenantID] = coord
	return coord, nil
}

func (d *deletionDesk[T]) deliver(tenantID string, n undo.Notification) {
	key := requestKey(tenantID, n.RecordID)

	load := d.requests.LoadAndDelete
	if n.Kind == undo.NotifyUndoAvailable {
		load = d.requests.Load
	}
	var req deleteRequest[T]
	value, ok := load(key)
	if ok {
		req = value.(deleteRequest[T])
	}

	d.bus.Publish(event.Event{
		Type:     deletionEventType(n.Kind),
		TenantID: tenantID,
		ActorID:  req.actor.UserID,
		Payload:  DeletionPayload[T]{Notification: n, Record: req.record},
	})

	resource := d.kind + "/" + n.RecordID
	switch n.Kind {
	case undo.NotifyCommitted:
		d.audit.Log(context.Background(), tenantID, d.auditAction, req.actor, model.AuditStatusSuccess, resource, req.record, nil, "")
	case undo.NotifyFailed:
		d.audit.Log(context.Background(), tenantID, d.auditAction, req.actor, model.AuditStatusFailure, resource, req.record, nil, n.Error)
	}

	if !ok && n.Kind != undo.NotifyUndoAvailable {
		d.opts.Logger.Debug("deletion resolved without a recorded actor", "kind", d.kind, "tenant_id", tenantID, "record_id", n.RecordID)
	}
}

func deletionEventType(kind undo.NotificationKind) event.Type {
	switch kind {
	case undo.NotifyUndone:
		return event.TypeDeletionUndone
	case undo.NotifyCommitted:
		return event.TypeDeletionCommitted
	case undo.NotifyFailed:
		return event.TypeDeletionFailed
	default:
		return event.TypeDeletionPending
	}
}

func requestKey(tenantID string, recordID string) string {
	return tenantID + "/" + recordID
}
