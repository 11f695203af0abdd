// Package undo coordinates optimistic deletes that the user can take back
// during a short window before they are committed remotely.
//
// A deletion is removed from the visible collection as soon as it is
// requested. If Undo is not called before the deadline, the remote delete runs
// exactly once. If that remote call fails, the record is put back.
package undo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultWindow = 5 * time.Second

// DefaultCommitMemory is how long a committed record id stays hidden from
// reloads and rejected by RequestDelete.
const DefaultCommitMemory = 2 * time.Minute

// Remover performs the remote delete for a record id.
type Remover func(ctx context.Context, recordID string) error

// Collection is the list of records the user is looking at.
type Collection[T any] interface {
	// Remove deletes the record and reports the index it occupied.
	Remove(recordID string) (index int, ok bool)
	// InsertAt places the record at index, appending when index is out of
	// range. It must not duplicate a record that is already present.
	InsertAt(index int, record T) int
	Contains(recordID string) bool
}

type Options struct {
	// Kind names the entity, e.g. "lead". It tags logs, metrics and notifications.
	Kind  string
	Label string

	Window        time.Duration
	CommitTimeout time.Duration

	Scheduler Scheduler
	Notifier  Notifier
	Observer  Observer
	Logger    *slog.Logger

	TombstoneCapacity int
	// CommitMemory bounds how long committed record ids are remembered.
	CommitMemory time.Duration
}

type Coordinator[T Record[T]] struct {
	opts       Options
	collection Collection[T]
	remove     Remover
	log        *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry[T]
	byRecord map[string]string
	resolved *tombstones
	recent   *recentCommits
	closed   bool

	// pendingRecords mirrors byRecord for lock-free reads from collection
	// refreshes, which hold the collection lock.
	pendingRecords sync.Map
	inflight       sync.WaitGroup
}

func New[T Record[T]](collection Collection[T], remove Remover, opts Options) *Coordinator[T] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Kind == "" {
		opts.Kind = "record"
	}
	if opts.Label == "" {
		opts.Label = opts.Kind
	}
	if opts.CommitMemory <= 0 {
		opts.CommitMemory = DefaultCommitMemory
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator[T]{
		opts:       opts,
		collection: collection,
		remove:     remove,
		log:        logger.With("component", "undo", "kind", opts.Kind),
		entries:    map[string]*entry[T]{},
		byRecord:   map[string]string{},
		resolved:   newTombstones(opts.TombstoneCapacity),
		recent:     newRecentCommits(opts.CommitMemory, opts.TombstoneCapacity),
	}
}

// Window returns the configured undo window.
func (c *Coordinator[T]) Window() time.Duration {
	return c.opts.Window
}

// RequestDelete hides the record immediately and schedules the remote delete
// for the end of the undo window.
//
// If the record already has an unresolved deletion, ErrDuplicatePendingDeletion
// is returned together with the existing entry; a still-pending entry gets its
// window restarted. A record committed within CommitMemory yields
// ErrAlreadyCommitted; the caller read it before the commit landed.
func (c *Coordinator[T]) RequestDelete(record T) (Pending[T], error) {
	recordID := strings.TrimSpace(record.RecordID())
	if recordID == "" {
		return Pending[T]{}, ErrInvalidRecord
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Pending[T]{}, ErrClosed
	}

	if pendingID, exists := c.byRecord[recordID]; exists {
		existing := c.entries[pendingID]
		restarted := existing.pending.Status == StatusPending
		if restarted {
			c.armLocked(existing)
		}
		view := existing.view()
		c.mu.Unlock()

		if restarted {
			c.log.Info("deletion window restarted", "pending_id", view.ID, "record_id", recordID, "deadline", view.Deadline)
			c.notify(view, NotifyUndoAvailable, nil)
		}
		return view, ErrDuplicatePendingDeletion
	}

	if c.recent.contains(recordID, c.opts.Scheduler.Now()) {
		c.mu.Unlock()
		c.log.Info("deletion request for committed record rejected", "record_id", recordID)
		return Pending[T]{}, ErrAlreadyCommitted
	}

	// Mark before removing so a concurrent refresh cannot bring the record back.
	c.pendingRecords.Store(recordID, struct{}{})
	index, found := c.collection.Remove(recordID)
	if !found {
		index = -1
	}

	e := &entry[T]{pending: Pending[T]{
		ID:            uuid.NewString(),
		Kind:          c.opts.Kind,
		RecordID:      recordID,
		Record:        record.Clone(),
		OriginalIndex: index,
		RequestedAt:   c.opts.Scheduler.Now(),
		Status:        StatusPending,
	}}
	c.entries[e.pending.ID] = e
	c.byRecord[recordID] = e.pending.ID
	c.armLocked(e)
	view := e.view()
	c.mu.Unlock()

	c.opts.Observer.Requested(c.opts.Kind)
	c.opts.Observer.PendingChanged(c.opts.Kind, 1)
	c.log.Info("deletion requested", "pending_id", view.ID, "record_id", recordID, "index", index, "deadline", view.Deadline)
	c.notify(view, NotifyUndoAvailable, nil)

	return view, nil
}

// Undo cancels a pending deletion and puts the record back where it was.
func (c *Coordinator[T]) Undo(pendingID string) (Pending[T], error) {
	c.mu.Lock()
	e, exists := c.entries[pendingID]
	if !exists {
		status, known := c.resolved.get(pendingID)
		c.mu.Unlock()

		switch {
		case !known:
			return Pending[T]{}, ErrPendingNotFound
		case status == StatusCommitted:
			return Pending[T]{}, ErrAlreadyCommitted
		default:
			return Pending[T]{}, ErrAlreadyResolved
		}
	}

	if e.pending.Status != StatusPending {
		view := e.view()
		c.mu.Unlock()
		return view, ErrAlreadyCommitted
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// Invalidates a callback that is already running but has not taken the lock.
	e.generation++
	e.pending.Status = StatusUndone
	c.restoreLocked(e)
	c.discardLocked(e)
	view := e.view()
	c.mu.Unlock()

	c.opts.Observer.Undone(c.opts.Kind)
	c.opts.Observer.PendingChanged(c.opts.Kind, -1)
	c.log.Info("deletion undone", "pending_id", view.ID, "record_id", view.RecordID)
	c.notify(view, NotifyUndone, nil)

	return view, nil
}

// Get returns the unresolved deletion with the given id.
func (c *Coordinator[T]) Get(pendingID string) (Pending[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[pendingID]
	if !exists {
		return Pending[T]{}, false
	}
	return e.view(), true
}

// List returns all unresolved deletions ordered by deadline.
func (c *Coordinator[T]) List() []Pending[T] {
	c.mu.Lock()
	out := make([]Pending[T], 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.view())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out
}

// IsPending reports whether the record has an unresolved deletion. It does
// not take the coordinator lock and is safe to call from collection
// callbacks.
func (c *Coordinator[T]) IsPending(recordID string) bool {
	_, ok := c.pendingRecords.Load(recordID)
	return ok
}

// IsHidden reports whether the record must stay out of the visible
// collection: its deletion is unresolved or was committed recently. Like
// IsPending it does not take the coordinator lock.
func (c *Coordinator[T]) IsHidden(recordID string) bool {
	return c.IsPending(recordID) || c.recent.contains(recordID, c.opts.Scheduler.Now())
}

// Flush commits every pending deletion now and waits for in-flight commits.
// After Flush the coordinator rejects new requests.
func (c *Coordinator[T]) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	batch := make([]*entry[T], 0, len(c.entries))
	for _, e := range c.entries {
		if e.pending.Status != StatusPending {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.generation++
		e.pending.Status = StatusCommitting
		batch = append(batch, e)
	}
	c.inflight.Add(len(batch))
	c.mu.Unlock()

	if len(batch) > 0 {
		c.log.Info("flushing pending deletions", "count", len(batch))
	}
	for _, e := range batch {
		go func() {
			defer c.inflight.Done()
			c.commit(e)
		}()
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush pending deletions: %w", ctx.Err())
	}
}

func (c *Coordinator[T]) armLocked(e *entry[T]) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.generation++
	generation := e.generation
	pendingID := e.pending.ID

	e.pending.Deadline = c.opts.Scheduler.Now().Add(c.opts.Window)
	e.timer = c.opts.Scheduler.Schedule(c.opts.Window, func() {
		c.fire(pendingID, generation)
	})
}

func (c *Coordinator[T]) fire(pendingID string, generation uint64) {
	c.mu.Lock()
	e, exists := c.entries[pendingID]
	if c.closed || !exists || e.generation != generation || e.pending.Status != StatusPending {
		c.mu.Unlock()
		return
	}
	e.pending.Status = StatusCommitting
	e.timer = nil
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	c.commit(e)
}

func (c *Coordinator[T]) commit(e *entry[T]) {
	started := time.Now()
	err := c.invokeRemove(e.pending.RecordID)
	elapsed := time.Since(started)

	c.mu.Lock()
	if err == nil {
		e.pending.Status = StatusCommitted
		// Remembered before the pending mark goes so the record is never
		// visible in between.
		c.recent.add(e.pending.RecordID, c.opts.Scheduler.Now())
		c.pendingRecords.Delete(e.pending.RecordID)
	} else {
		e.pending.Status = StatusFailed
		c.restoreLocked(e)
	}
	c.discardLocked(e)
	view := e.view()
	c.mu.Unlock()

	c.opts.Observer.PendingChanged(c.opts.Kind, -1)
	if err != nil {
		c.opts.Observer.Failed(c.opts.Kind, elapsed)
		c.log.Error("remote delete failed; record restored", "pending_id", view.ID, "record_id", view.RecordID, "error", err)
		c.notify(view, NotifyFailed, err)
		return
	}

	c.opts.Observer.Committed(c.opts.Kind, elapsed)
	c.log.Info("deletion committed", "pending_id", view.ID, "record_id", view.RecordID, "duration_ms", elapsed.Milliseconds())
	c.notify(view, NotifyCommitted, nil)
}

func (c *Coordinator[T]) invokeRemove(recordID string) (err error) {
	ctx := context.Background()
	if c.opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CommitTimeout)
		defer cancel()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("remote delete panicked: %v", recovered)
		}
	}()

	return c.remove(ctx, recordID)
}

// restoreLocked clears the pending mark before reinserting so a refresh that
// runs in between keeps the record instead of dropping it.
func (c *Coordinator[T]) restoreLocked(e *entry[T]) {
	c.pendingRecords.Delete(e.pending.RecordID)
	c.collection.InsertAt(e.pending.OriginalIndex, e.pending.Record.Clone())
}

func (c *Coordinator[T]) discardLocked(e *entry[T]) {
	delete(c.entries, e.pending.ID)
	if c.byRecord[e.pending.RecordID] == e.pending.ID {
		delete(c.byRecord, e.pending.RecordID)
	}
	c.resolved.put(e.pending.ID, e.pending.Status)
}

func (c *Coordinator[T]) notify(p Pending[T], kind NotificationKind, cause error) {
	name := p.Record.DisplayName()
	n := Notification{
		Kind:       kind,
		Level:      LevelInfo,
		EntityKind: c.opts.Kind,
		PendingID:  p.ID,
		RecordID:   p.RecordID,
	}

	switch kind {
	case NotifyUndoAvailable:
		n.Message = fmt.Sprintf("%s %q deleted", c.opts.Label, name)
		n.Deadline = p.Deadline
		n.Action = &Action{Label: "Undo", PendingID: p.ID}
	case NotifyUndone:
		n.Message = fmt.Sprintf("%s %q restored", c.opts.Label, name)
	case NotifyCommitted:
		n.Message = fmt.Sprintf("%s %q permanently deleted", c.opts.Label, name)
	case NotifyFailed:
		n.Level = LevelError
		n.Message = fmt.Sprintf("Could not delete %s %q, it has been restored", strings.ToLower(c.opts.Label), name)
		if cause != nil {
			n.Error = cause.Error()
		}
	}

	c.opts.Notifier.Notify(n)
}
