package undo

import (
	"sort"
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	Now() time.Time
	Schedule(delay time.Duration, fn func()) Timer
}

// TimerScheduler schedules callbacks on the runtime timer.
type TimerScheduler struct{}

func (TimerScheduler) Now() time.Time {
	return time.Now().UTC()
}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}

// ManualScheduler is a virtual clock. Callbacks only run from Advance or
// RunDue, on the calling goroutine, in deadline order.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks map[uint64]*manualTask
}

type manualTask struct {
	scheduler *ManualScheduler
	id        uint64
	due       time.Time
	fn        func()
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start, tasks: map[uint64]*manualTask{}}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	task := &manualTask{scheduler: s, id: s.seq, due: s.now.Add(delay), fn: fn}
	s.tasks[task.id] = task
	return task
}

// Pending returns the number of callbacks that have not run or been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the clock forward by d and runs every callback that became due.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
	return s.RunDue()
}

// RunDue runs callbacks whose deadline is at or before the current time.
// Callbacks scheduled while running are picked up if they are already due.
func (s *ManualScheduler) RunDue() int {
	ran := 0
	for {
		task := s.popDue()
		if task == nil {
			return ran
		}
		task.fn()
		ran++
	}
}

func (s *ManualScheduler) popDue() *manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*manualTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		if !task.due.After(s.now) {
			due = append(due, task)
		}
	}
	if len(due) == 0 {
		return nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})

	next := due[0]
	delete(s.tasks, next.id)
	return next
}

func (t *manualTask) Stop() bool {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.id]; !exists {
		return false
	}
	delete(s.tasks, t.id)
	return true
}
