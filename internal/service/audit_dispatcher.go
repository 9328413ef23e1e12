package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbj-app/pbj-api/internal/models"
	"github.com/pbj-app/pbj-api/pkg/jobs"
)

// AuditDispatcher moves audit writes off the request path through the
// background job queue. It satisfies the same repository seam the services
// write through, so synchronous persistence remains a drop-in for tests.
type AuditDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditDispatcher builds a dispatcher persisting through the given
// repository. Start must be called before entries are accepted.
func NewAuditDispatcher(repo noteAuditRepository, cfg jobs.QueueConfig) *AuditDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload type %T", job.Payload)
		}
		return repo.CreateAuditLog(ctx, entry)
	}

	return &AuditDispatcher{
		queue:  jobs.NewQueue("audit", handler, cfg),
		logger: logger,
	}
}

// Start launches the background workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// CreateAuditLog enqueues the entry for background persistence. Audit writes
// are best-effort: a full queue is logged, never surfaced to the caller.
func (d *AuditDispatcher) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	err := d.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "audit_log",
		Payload: entry,
	})
	if err != nil {
		d.logger.Warn("failed to enqueue audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
	return nil
}
