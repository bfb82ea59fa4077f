package plans

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

// Unbounded is the workspace ceiling used for the top tier.
const Unbounded = 999999

// Limits are the ceilings a plan grants.
type Limits struct {
	ScansPerMonth        int `json:"scans_per_month"`
	UsersPerWorkspace    int `json:"users_per_workspace"`
	WorkspacesPerAccount int `json:"workspaces_per_account"`
}

var defaultLimits = map[string]Limits{
	models.PlanLite:  {ScansPerMonth: 2, UsersPerWorkspace: 1, WorkspacesPerAccount: 1},
	models.PlanTeam:  {ScansPerMonth: 10, UsersPerWorkspace: 3, WorkspacesPerAccount: 5},
	models.PlanScale: {ScansPerMonth: 25, UsersPerWorkspace: 10, WorkspacesPerAccount: Unbounded},
}

// All lists the tiers from lowest to highest.
var All = []string{models.PlanLite, models.PlanTeam, models.PlanScale}

// Catalog maps plans to limits and Stripe price ids. It is immutable once
// built.
type Catalog struct {
	limits   map[string]Limits
	priceIDs map[string]string
}

// NewCatalog builds a catalog from a key lookup, usually env.GetEnv.
func NewCatalog(lookup func(key, def string) string) *Catalog {
	c := &Catalog{
		limits:   make(map[string]Limits, len(All)),
		priceIDs: make(map[string]string, len(All)),
	}
	for _, plan := range All {
		def := defaultLimits[plan]
		c.limits[plan] = Limits{
			ScansPerMonth:        positiveInt(lookup("PLAN_SKU_LIMIT_"+plan, ""), def.ScansPerMonth),
			UsersPerWorkspace:    positiveInt(lookup("PLAN_USER_LIMIT_"+plan, ""), def.UsersPerWorkspace),
			WorkspacesPerAccount: positiveInt(lookup("PLAN_WORKSPACE_LIMIT_"+plan, ""), def.WorkspacesPerAccount),
		}
		c.priceIDs[plan] = strings.TrimSpace(lookup("STRIPE_"+plan+"_PRICE_ID", ""))
	}
	return c
}

// LimitsFor returns the limits of plan, or the LITE limits for unknown plans.
func (c *Catalog) LimitsFor(plan string) Limits {
	if l, ok := c.limits[Normalize(plan)]; ok {
		return l
	}
	return c.limits[models.PlanLite]
}

// PlanForPriceID maps a Stripe price id to a plan. Empty and unknown ids do
// not match.
func (c *Catalog) PlanForPriceID(priceID string) (string, bool) {
	id := strings.TrimSpace(priceID)
	if id == "" {
		return "", false
	}
	for _, plan := range All {
		if p := c.priceIDs[plan]; p != "" && p == id {
			return plan, true
		}
	}
	return "", false
}

// PriceIDFor returns the configured Stripe price id of plan.
func (c *Catalog) PriceIDFor(plan string) (string, bool) {
	id, ok := c.priceIDs[strings.ToUpper(strings.TrimSpace(plan))]
	return id, ok && id != ""
}

// Normalize maps any spelling of a tier to its canonical name, defaulting to LITE.
func Normalize(plan string) string {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case models.PlanTeam:
		return models.PlanTeam
	case models.PlanScale:
		return models.PlanScale
	default:
		return models.PlanLite
	}
}

// Rank orders tiers, SCALE > TEAM > LITE. Unknown values rank 0.
func Rank(plan string) int {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case models.PlanScale:
		return 3
	case models.PlanTeam:
		return 2
	case models.PlanLite:
		return 1
	default:
		return 0
	}
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

var (
	defaultCatalog *Catalog
	catalogOnce    sync.Once
)

// Default returns the process wide catalog read from the environment on first use.
func Default() *Catalog {
	catalogOnce.Do(func() {
		defaultCatalog = NewCatalog(env.GetEnv)
	})
	return defaultCatalog
}
