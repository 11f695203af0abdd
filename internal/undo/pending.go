package undo

import (
	"errors"
	"sync"
	"time"
)

// Status is the lifecycle state of a pending deletion.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitting Status = "committing"
	StatusCommitted  Status = "committed"
	StatusUndone     Status = "undone"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusUndone || s == StatusFailed
}

var (
	ErrInvalidRecord            = errors.New("record has no identifier")
	ErrDuplicatePendingDeletion = errors.New("deletion already pending for record")
	ErrAlreadyCommitted         = errors.New("deletion already committed")
	ErrAlreadyResolved          = errors.New("deletion already resolved")
	ErrPendingNotFound          = errors.New("pending deletion not found")
	ErrClosed                   = errors.New("coordinator closed")
)

// Record is an entity that can be optimistically deleted. Clone must return a
// deep copy so the snapshot survives later mutation of the original.
type Record[T any] interface {
	RecordID() string
	DisplayName() string
	Clone() T
}

// Pending is a point-in-time view of a pending deletion.
type Pending[T any] struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	RecordID      string    `json:"record_id"`
	Record        T         `json:"record"`
	OriginalIndex int       `json:"original_index"`
	RequestedAt   time.Time `json:"requested_at"`
	Deadline      time.Time `json:"deadline"`
	Status        Status    `json:"status"`
}

// Remaining returns how long the undo window stays open relative to now.
func (p Pending[T]) Remaining(now time.Time) time.Duration {
	left := p.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

type entry[T Record[T]] struct {
	pending    Pending[T]
	timer      Timer
	generation uint64
}

func (e *entry[T]) view() Pending[T] {
	p := e.pending
	p.Record = e.pending.Record.Clone()
	return p
}

// tombstones remembers the terminal status of recently resolved pending ids so
// late Undo calls can tell "too late" apart from "never existed".
type tombstones struct {
	capacity int
	order    []string
	status   map[string]Status
}

func newTombstones(capacity int) *tombstones {
	if capacity <= 0 {
		capacity = 1024
	}
	return &tombstones{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		status:   make(map[string]Status, capacity),
	}
}

func (t *tombstones) put(id string, status Status) {
	if _, exists := t.status[id]; !exists {
		if len(t.order) >= t.capacity {
			oldest := t.order[0]
			t.order = t.order[1:]
			delete(t.status, oldest)
		}
		t.order = append(t.order, id)
	}
	t.status[id] = status
}

func (t *tombstones) get(id string) (Status, bool) {
	status, ok := t.status[id]
	return status, ok
}

// recentCommits remembers record ids committed within the retention period.
// Requests and reloads that read the row before the commit landed consult it
// so the record cannot come back. Writes happen under the coordinator lock;
// reads are lock-free.
type recentCommits struct {
	retention time.Duration
	capacity  int
	order     []string
	at        sync.Map
}

func newRecentCommits(retention time.Duration, capacity int) *recentCommits {
	if capacity <= 0 {
		capacity = 1024
	}
	return &recentCommits{
		retention: retention,
		capacity:  capacity,
		order:     make([]string, 0, capacity),
	}
}

func (r *recentCommits) add(recordID string, now time.Time) {
	for len(r.order) > 0 {
		oldest := r.order[0]
		committedAt, ok := r.at.Load(oldest)
		if ok && len(r.order) < r.capacity && now.Sub(committedAt.(time.Time)) < r.retention {
			break
		}
		r.order = r.order[1:]
		r.at.Delete(oldest)
	}
	r.order = append(r.order, recordID)
	r.at.Store(recordID, now)
}

func (r *recentCommits) contains(recordID string, now time.Time) bool {
	committedAt, ok := r.at.Load(recordID)
	return ok && now.Sub(committedAt.(time.Time)) < r.retention
}
