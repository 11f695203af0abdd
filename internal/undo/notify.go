package undo

import "time"

type NotificationKind string

const (
	NotifyUndoAvailable NotificationKind = "undo_available"
	NotifyUndone        NotificationKind = "undone"
	NotifyCommitted     NotificationKind = "committed"
	NotifyFailed        NotificationKind = "failed"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Action is a button rendered next to a notification.
type Action struct {
	Label     string `json:"label"`
	PendingID string `json:"pending_id"`
}

// Notification is a fire-and-forget message for the user that triggered a
// deletion.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	Level      Level            `json:"level"`
	Message    string           `json:"message"`
	EntityKind string           `json:"entity_kind"`
	PendingID  string           `json:"pending_id"`
	RecordID   string           `json:"record_id"`
	Deadline   time.Time        `json:"deadline,omitzero"`
	Action     *Action          `json:"action,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Observer receives lifecycle signals, typically for metrics.
type Observer interface {
	Requested(kind string)
	Undone(kind string)
	Committed(kind string, elapsed time.Duration)
	Failed(kind string, elapsed time.Duration)
	PendingChanged(kind string, delta int)
}

type nopObserver struct{}

func (nopObserver) Requested(string)                {}
func (nopObserver) Undone(string)                   {}
func (nopObserver) Committed(string, time.Duration) {}
func (nopObserver) Failed(string, time.Duration)    {}
func (nopObserver) PendingChanged(string, int)      {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
