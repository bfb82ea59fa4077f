package jobqueue

import (
	"context"
	"time"

	"github.com/ManuelReschke/LabelFox/app/models"
)

const (
	DefaultWorkers      = 3
	DefaultMaxAttempts  = 3
	DefaultStaleAfter   = 10 * time.Minute
	DefaultPollInterval = 5 * time.Second

	// SweepSchedule is the cron spec of the stale job sweeper.
	SweepSchedule = "@every 1m"

	ErrTimedOut = "job timed out"
)

// Handler renders one claimed report job. A returned error fails the job.
type Handler func(ctx context.Context, job *models.Report) error

// SweepResult counts the jobs touched by one sweep.
type SweepResult struct {
	Requeued int64
	Failed   int64
}
