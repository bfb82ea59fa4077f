package controllers

import (
	"sync"

	"github.com/ManuelReschke/LabelFox/internal/pkg/billing"
	"github.com/ManuelReschke/LabelFox/internal/pkg/labels"
	"github.com/ManuelReschke/LabelFox/internal/pkg/reports"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usage"
	"github.com/ManuelReschke/LabelFox/internal/pkg/workspace"
)

// Services bundles the domain services the handlers delegate to.
type Services struct {
	Workspaces *workspace.Service
	Usage      *usage.Service
	Billing    *billing.Service
	Reconciler *billing.Reconciler
	Labels     *labels.Service
	Reports    *reports.Service
}

var (
	servicesMu sync.RWMutex
	services   *Services
)

// SetServices installs the services used by all handlers.
func SetServices(s *Services) {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	services = s
}

// GetServices returns the installed services. It panics when none were set,
// which is a wiring bug at startup.
func GetServices() *Services {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	if services == nil {
		panic("controllers: services not initialized")
	}
	return services
}
