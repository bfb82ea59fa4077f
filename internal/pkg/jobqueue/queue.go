package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/metrics"
)

// Queue pulls report jobs from the reports table. A job is owned by the
// worker whose conditional queued -> running update succeeded.
type Queue struct {
	db           *gorm.DB
	handler      Handler
	workers      int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time

	wake    chan struct{}
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a new job queue
func NewQueue(db *gorm.DB, workers int, handler Handler) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		db:           db,
		handler:      handler,
		workers:      workers,
		maxAttempts:  DefaultMaxAttempts,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
}

// Start requeues jobs orphaned by a previous process and starts the workers.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if n, err := q.RequeueOrphaned(ctx); err != nil {
		log.Errorf("[JobQueue] Failed to requeue orphaned jobs: %v", err)
	} else if n > 0 {
		log.Infof("[JobQueue] Requeued %d orphaned jobs", n)
	}

	q.cancel = cancel
	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.cancel()
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// Notify wakes an idle worker.
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		processed, err := q.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("[JobQueue] Worker %d: %v", id, err)
		}
		if processed {
			continue
		}

		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		case <-q.wake:
		case <-time.After(q.pollInterval):
		}
	}
}

// RunOnce claims and processes the oldest queued job. It reports whether a
// job was processed.
func (q *Queue) RunOnce(ctx context.Context) (bool, error) {
	job, err := q.Claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	log.Infof("[JobQueue] Processing report %s (attempt %d)", job.ID, job.Attempts)
	if err := q.handler(ctx, job); err != nil {
		if ctx.Err() != nil {
			// shutdown interrupted the job, the next process picks it up again
			log.Warnf("[JobQueue] Report %s interrupted, returning it to the queue", job.ID)
			if rerr := q.requeue(context.WithoutCancel(ctx), job.ID); rerr != nil {
				return true, fmt.Errorf("requeue report %s: %w", job.ID, rerr)
			}
			return true, ctx.Err()
		}
		metrics.ReportJobsTotal.WithLabelValues(models.ReportStatusFailed).Inc()
		log.Errorf("[JobQueue] Report %s failed: %v", job.ID, err)
		if ferr := q.fail(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			return true, fmt.Errorf("mark report %s failed: %w", job.ID, ferr)
		}
		return true, nil
	}
	metrics.ReportJobsTotal.WithLabelValues(models.ReportStatusCompleted).Inc()
	return true, nil
}

// Claim moves the oldest queued job to running. It returns nil when no job
// is queued; a job taken by another worker in between is skipped.
func (q *Queue) Claim(ctx context.Context) (*models.Report, error) {
	db := q.db.WithContext(ctx)
	for i := 0; i < 3; i++ {
		var candidate models.Report
		err := db.Select("id").
			Where("status = ?", models.ReportStatusQueued).
			Order("created_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res := db.Model(&models.Report{}).
			Where("id = ? AND status = ?", candidate.ID, models.ReportStatusQueued).
			Updates(map[string]interface{}{
				"status":     models.ReportStatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"progress":   0,
				"error":      "",
				"started_at": q.now(),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		var job models.Report
		if err := db.Where("id = ?", candidate.ID).First(&job).Error; err != nil {
			return nil, err
		}
		metrics.ReportJobsTotal.WithLabelValues(models.ReportStatusRunning).Inc()
		return &job, nil
	}
	return nil, nil
}

func (q *Queue) fail(ctx context.Context, id, msg string) error {
	return q.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":   models.ReportStatusFailed,
			"progress": 0,
			"error":    msg,
		}).Error
}

// requeue hands a running job back without charging the interrupted attempt.
func (q *Queue) requeue(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":   models.ReportStatusQueued,
			"progress": 0,
			"attempts": gorm.Expr("CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END"),
		}).Error
}

// RequeueOrphaned returns every running job to the queue. Only call it
// before this process starts workers.
func (q *Queue) RequeueOrphaned(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Model(&models.Report{}).
		Where("status = ?", models.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":   models.ReportStatusQueued,
			"progress": 0,
		})
	return res.RowsAffected, res.Error
}

// SweepStale requeues running jobs without progress for longer than maxAge
// while they have attempts left and fails the others.
func (q *Queue) SweepStale(ctx context.Context, maxAge time.Duration) (SweepResult, error) {
	var out SweepResult
	cutoff := q.now().Add(-maxAge)
	db := q.db.WithContext(ctx)

	res := db.Model(&models.Report{}).
		Where("status = ? AND updated_at < ? AND attempts < ?", models.ReportStatusRunning, cutoff, q.maxAttempts).
		Updates(map[string]interface{}{
			"status":   models.ReportStatusQueued,
			"progress": 0,
		})
	if res.Error != nil {
		return out, res.Error
	}
	out.Requeued = res.RowsAffected

	res = db.Model(&models.Report{}).
		Where("status = ? AND updated_at < ? AND attempts >= ?", models.ReportStatusRunning, cutoff, q.maxAttempts).
		Updates(map[string]interface{}{
			"status":   models.ReportStatusFailed,
			"progress": 0,
			"error":    ErrTimedOut,
		})
	if res.Error != nil {
		return out, res.Error
	}
	out.Failed = res.RowsAffected

	if out.Requeued > 0 || out.Failed > 0 {
		log.Warnf("[JobQueue] Sweeper requeued %d and failed %d stale jobs", out.Requeued, out.Failed)
		metrics.ReportJobsTotal.WithLabelValues("requeued").Add(float64(out.Requeued))
	}
	if out.Requeued > 0 {
		q.Notify()
	}
	return out, nil
}
