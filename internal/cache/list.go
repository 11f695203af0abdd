package cache

import (
	"sync"
	"time"

	"crm-api/internal/undo"
)

// List is an ordered, concurrency-safe view of records as the user sees them.
type List[T undo.Record[T]] struct {
	mu       sync.RWMutex
	items    []T
	loadedAt time.Time
}

func NewList[T undo.Record[T]](items ...T) *List[T] {
	l := &List[T]{}
	l.items = cloneAll(items)
	return l
}

func (l *List[T]) Remove(id string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	index := l.indexLocked(id)
	if index < 0 {
		return -1, false
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
	return index, true
}

// InsertAt puts record at index. An out of range index appends. A record that
// is already present stays where it is.
func (l *List[T]) InsertAt(index int, record T) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing := l.indexLocked(record.RecordID()); existing >= 0 {
		return existing
	}
	if index < 0 || index > len(l.items) {
		index = len(l.items)
	}

	var zero T
	l.items = append(l.items, zero)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = record
	return index
}

func (l *List[T]) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(id) >= 0
}

func (l *List[T]) Get(id string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	index := l.indexLocked(id)
	if index < 0 {
		var zero T
		return zero, false
	}
	return l.items[index].Clone(), true
}

func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Snapshot returns deep copies of every record in order.
func (l *List[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneAll(l.items)
}

// Filter returns deep copies of the records that match keep, in order.
func (l *List[T]) Filter(keep func(T) bool) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, 0, len(l.items))
	for _, item := range l.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Upsert replaces the record with the same id in place, or prepends it.
func (l *List[T]) Upsert(record T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record = record.Clone()
	if index := l.indexLocked(record.RecordID()); index >= 0 {
		l.items[index] = record
		return
	}
	l.items = append([]T{record}, l.items...)
}

// Replace swaps the whole content, leaving out records for which exclude
// returns true. exclude runs with the list lock held and must not block.
func (l *List[T]) Replace(items []T, exclude func(id string) bool, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]T, 0, len(items))
	for _, item := range items {
		if exclude != nil && exclude(item.RecordID()) {
			continue
		}
		next = append(next, item.Clone())
	}
	l.items = next
	l.loadedAt = at
}

// LoadedAt reports when Replace last ran. It is zero for a list that was never
// loaded.
func (l *List[T]) LoadedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedAt
}

func (l *List[T]) expire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadedAt = time.Time{}
}

func (l *List[T]) indexLocked(id string) int {
	for i, item := range l.items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

func cloneAll[T undo.Record[T]](items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}
