package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database/dbtest"
)

func createReport(t *testing.T, db *gorm.DB, name, status string, attempts int) *models.Report {
	t.Helper()
	r := &models.Report{
		WorkspaceID: "ws",
		Name:        name,
		Type:        models.ReportTypeMonthly,
		Format:      models.ReportFormatPDF,
		Status:      status,
		Attempts:    attempts,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func loadReport(t *testing.T, db *gorm.DB, id string) models.Report {
	t.Helper()
	var r models.Report
	require.NoError(t, db.Where("id = ?", id).First(&r).Error)
	return r
}

func backdate(t *testing.T, db *gorm.DB, id string, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Model(&models.Report{}).Where("id = ?", id).UpdateColumn("updated_at", time.Now().Add(-age)).Error)
}

func TestNewQueue_DefaultWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, DefaultWorkers},
		{"Negative workers", -1, DefaultWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(nil, tt.workers, nil)
			assert.Equal(t, tt.want, q.workers)
			assert.False(t, q.running)
		})
	}
}

func TestClaim_OldestQueuedFirst(t *testing.T) {
	db := dbtest.Open(t)
	q := NewQueue(db, 1, nil)

	first := createReport(t, db, "first", models.ReportStatusQueued, 0)
	require.NoError(t, db.Model(&models.Report{}).Where("id = ?", first.ID).UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)
	createReport(t, db, "second", models.ReportStatusQueued, 0)
	createReport(t, db, "done", models.ReportStatusCompleted, 1)

	job, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first.ID, job.ID)
	assert.Equal(t, models.ReportStatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.NotNil(t, job.StartedAt)

	job, err = q.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "second", job.Name)

	job, err = q.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaim_ConcurrentWorkersTakeEachJobOnce(t *testing.T) {
	db := dbtest.Open(t)
	q := NewQueue(db, 4, nil)
	for i := 0; i < 5; i++ {
		createReport(t, db, "r", models.ReportStatusQueued, 0)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Claim(context.Background())
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 5)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func TestRunOnce_HandlerSuccess(t *testing.T) {
	db := dbtest.Open(t)
	var handled string
	q := NewQueue(db, 1, func(ctx context.Context, job *models.Report) error {
		handled = job.ID
		return db.Model(&models.Report{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{"status": models.ReportStatusCompleted, "progress": 100}).Error
	})
	r := createReport(t, db, "r", models.ReportStatusQueued, 0)

	processed, err := q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, r.ID, handled)
	assert.Equal(t, models.ReportStatusCompleted, loadReport(t, db, r.ID).Status)

	processed, err = q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRunOnce_HandlerErrorFailsJob(t *testing.T) {
	db := dbtest.Open(t)
	q := NewQueue(db, 1, func(ctx context.Context, job *models.Report) error {
		return errors.New("upload failed")
	})
	r := createReport(t, db, "r", models.ReportStatusQueued, 0)

	processed, err := q.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	got := loadReport(t, db, r.ID)
	assert.Equal(t, models.ReportStatusFailed, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "upload failed", got.Error)
}

func TestRequeueOrphaned(t *testing.T) {
	db := dbtest.Open(t)
	q := NewQueue(db, 1, nil)
	running := createReport(t, db, "running", models.ReportStatusRunning, 2)
	done := createReport(t, db, "done", models.ReportStatusCompleted, 1)

	n, err := q.RequeueOrphaned(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, models.ReportStatusQueued, loadReport(t, db, running.ID).Status)
	assert.Equal(t, models.ReportStatusCompleted, loadReport(t, db, done.ID).Status)
}

func TestSweepStale(t *testing.T) {
	db := dbtest.Open(t)
	q := NewQueue(db, 1, nil)

	stale := createReport(t, db, "stale", models.ReportStatusRunning, 1)
	backdate(t, db, stale.ID, 11*time.Minute)
	exhausted := createReport(t, db, "exhausted", models.ReportStatusRunning, DefaultMaxAttempts)
	backdate(t, db, exhausted.ID, 11*time.Minute)
	fresh := createReport(t, db, "fresh", models.ReportStatusRunning, 1)
	backdate(t, db, fresh.ID, 2*time.Minute)

	res, err := q.SweepStale(context.Background(), DefaultStaleAfter)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Requeued)
	assert.EqualValues(t, 1, res.Failed)

	assert.Equal(t, models.ReportStatusQueued, loadReport(t, db, stale.ID).Status)
	got := loadReport(t, db, exhausted.ID)
	assert.Equal(t, models.ReportStatusFailed, got.Status)
	assert.Equal(t, ErrTimedOut, got.Error)
	assert.Equal(t, models.ReportStatusRunning, loadReport(t, db, fresh.ID).Status)
}

func TestQueue_StartProcessesQueuedJobs(t *testing.T) {
	db := dbtest.Open(t)
	var count int32
	q := NewQueue(db, 2, func(ctx context.Context, job *models.Report) error {
		atomic.AddInt32(&count, 1)
		return db.Model(&models.Report{}).Where("id = ?", job.ID).Update("status", models.ReportStatusCompleted).Error
	})
	q.pollInterval = 10 * time.Millisecond

	orphan := createReport(t, db, "orphan", models.ReportStatusRunning, 1)
	createReport(t, db, "queued", models.ReportStatusQueued, 0)

	q.Start()
	defer q.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.ReportStatusCompleted, loadReport(t, db, orphan.ID).Status)
	assert.Equal(t, 2, loadReport(t, db, orphan.ID).Attempts)
}

func TestQueue_StopReturnsInFlightJobToQueue(t *testing.T) {
	db := dbtest.Open(t)
	started := make(chan string, 1)
	q := NewQueue(db, 1, func(ctx context.Context, job *models.Report) error {
		started <- job.ID
		<-ctx.Done()
		return ctx.Err()
	})
	q.pollInterval = 10 * time.Millisecond
	r := createReport(t, db, "slow", models.ReportStatusQueued, 0)

	q.Start()
	select {
	case id := <-started:
		require.Equal(t, r.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not picked up")
	}
	q.Stop()

	got := loadReport(t, db, r.ID)
	assert.Equal(t, models.ReportStatusQueued, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, 0, got.Attempts)
	assert.Empty(t, got.Error)

	var done int32
	next := NewQueue(db, 1, func(ctx context.Context, job *models.Report) error {
		atomic.StoreInt32(&done, 1)
		return db.Model(&models.Report{}).Where("id = ?", job.ID).Update("status", models.ReportStatusCompleted).Error
	})
	next.pollInterval = 10 * time.Millisecond
	next.Start()
	defer next.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&done) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.ReportStatusCompleted, loadReport(t, db, r.ID).Status)
}

func TestRunOnce_CanceledContextRequeuesJob(t *testing.T) {
	db := dbtest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(db, 1, func(_ context.Context, job *models.Report) error {
		cancel()
		return context.Canceled
	})
	r := createReport(t, db, "r", models.ReportStatusQueued, 1)

	processed, err := q.RunOnce(ctx)
	assert.True(t, processed)
	assert.True(t, errors.Is(err, context.Canceled))

	got := loadReport(t, db, r.ID)
	assert.Equal(t, models.ReportStatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts)
}
