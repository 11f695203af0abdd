package service

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"crm-api/internal/event"
	"crm-api/internal/repository"
	"crm-api/internal/undo"
)

func TestDeletionDesk_LogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	auditStore := new(repository.MockAuditStore)
	auditStore.On("Log", mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewLeadService(new(repository.MockLeadStore), event.NewBus(), NewAuditService(auditStore), time.Hour, DeletionOptions{
		Window:    5 * time.Second,
		Scheduler: undo.NewManualScheduler(testStart),
		Logger:    slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})

	svc.desk.deliver(tenant, undo.Notification{Kind: undo.NotifyCommitted, RecordID: "l9"})

	assert.Contains(t, buf.String(), `"msg":"deletion resolved without a recorded actor"`)
	assert.Contains(t, buf.String(), `"record_id":"l9"`)
	assert.Contains(t, buf.String(), `"kind":"lead"`)
}
