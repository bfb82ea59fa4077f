package jobqueue

import (
	"context"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

// Manager owns the report queue and its cron driven stale job sweeper.
type Manager struct {
	queue   *Queue
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager builds a manager around a queue of REPORT_WORKERS workers.
func NewManager(db *gorm.DB, handler Handler) *Manager {
	workers, err := strconv.Atoi(env.GetEnv("REPORT_WORKERS", strconv.Itoa(DefaultWorkers)))
	if err != nil {
		workers = DefaultWorkers
	}
	return &Manager{queue: NewQueue(db, workers, handler)}
}

// InitManager creates the process wide manager once.
func InitManager(db *gorm.DB, handler Handler) *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(db, handler)
	})
	return globalManager
}

// GetManager returns the process wide manager, nil before InitManager.
func GetManager() *Manager {
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue and the sweeper.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(SweepSchedule, m.sweep); err != nil {
		return err
	}

	log.Info("[JobQueue Manager] Starting job queue and sweeper")
	m.queue.Start()
	c.Start()
	m.cron = c
	m.running = true
	return nil
}

// Stop stops the sweeper first, then the workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and sweeper...")
	<-m.cron.Stop().Done()
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweep() {
	if _, err := m.queue.SweepStale(context.Background(), DefaultStaleAfter); err != nil {
		log.Errorf("[JobQueue Manager] Sweep failed: %v", err)
	}
}
