package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database/dbtest"
)

func noopHandler(ctx context.Context, job *models.Report) error { return nil }

func TestInitManager_Singleton(t *testing.T) {
	globalManager = nil
	managerOnce = sync.Once{}
	t.Cleanup(func() {
		globalManager = nil
		managerOnce = sync.Once{}
	})

	db := dbtest.Open(t)
	m1 := InitManager(db, noopHandler)
	m2 := InitManager(db, noopHandler)

	assert.NotNil(t, m1)
	assert.Same(t, m1, m2)
	assert.Same(t, m1, GetManager())
	assert.NotNil(t, m1.GetQueue())
	assert.False(t, m1.IsRunning())
}

func TestManager_StartStop(t *testing.T) {
	db := dbtest.Open(t)
	m := NewManager(db, noopHandler)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	require.NoError(t, m.Start())

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()
}

func TestManager_SweepRequeuesStaleJobs(t *testing.T) {
	db := dbtest.Open(t)
	m := NewManager(db, noopHandler)
	r := createReport(t, db, "stale", models.ReportStatusRunning, 1)
	backdate(t, db, r.ID, DefaultStaleAfter+time.Minute)

	m.sweep()
	assert.Equal(t, models.ReportStatusQueued, loadReport(t, db, r.ID).Status)
}
