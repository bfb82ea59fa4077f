package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(m map[string]string) func(string, string) string {
	return func(key, def string) string {
		if v, ok := m[key]; ok {
			return v
		}
		return def
	}
}

func TestDefaultLimits(t *testing.T) {
	c := NewCatalog(lookupFrom(nil))

	assert.Equal(t, Limits{ScansPerMonth: 2, UsersPerWorkspace: 1, WorkspacesPerAccount: 1}, c.LimitsFor("LITE"))
	assert.Equal(t, Limits{ScansPerMonth: 10, UsersPerWorkspace: 3, WorkspacesPerAccount: 5}, c.LimitsFor("TEAM"))
	assert.Equal(t, Limits{ScansPerMonth: 25, UsersPerWorkspace: 10, WorkspacesPerAccount: Unbounded}, c.LimitsFor("SCALE"))
}

func TestUnknownPlanFallsBackToLite(t *testing.T) {
	c := NewCatalog(lookupFrom(nil))

	assert.Equal(t, c.LimitsFor("LITE"), c.LimitsFor("ENTERPRISE"))
	assert.Equal(t, c.LimitsFor("LITE"), c.LimitsFor(""))
}

func TestEnvOverridesRequirePositiveNumbers(t *testing.T) {
	c := NewCatalog(lookupFrom(map[string]string{
		"PLAN_SKU_LIMIT_LITE":        "7",
		"PLAN_USER_LIMIT_TEAM":       "0",
		"PLAN_WORKSPACE_LIMIT_TEAM":  "-3",
		"PLAN_SKU_LIMIT_SCALE":       "many",
		"PLAN_WORKSPACE_LIMIT_SCALE": " 40 ",
	}))

	assert.Equal(t, 7, c.LimitsFor("LITE").ScansPerMonth)
	assert.Equal(t, 3, c.LimitsFor("TEAM").UsersPerWorkspace)
	assert.Equal(t, 5, c.LimitsFor("TEAM").WorkspacesPerAccount)
	assert.Equal(t, 25, c.LimitsFor("SCALE").ScansPerMonth)
	assert.Equal(t, 40, c.LimitsFor("SCALE").WorkspacesPerAccount)
}

func TestPlanForPriceID(t *testing.T) {
	c := NewCatalog(lookupFrom(map[string]string{
		"STRIPE_LITE_PRICE_ID": "price_lite",
		"STRIPE_TEAM_PRICE_ID": "price_team",
	}))

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "price_lite", want: "LITE", wantOK: true},
		{in: "price_team", want: "TEAM", wantOK: true},
		{in: "price_scale", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := c.PlanForPriceID(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("PlanForPriceID(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}

	id, ok := c.PriceIDFor("team")
	assert.True(t, ok)
	assert.Equal(t, "price_team", id)
	_, ok = c.PriceIDFor("SCALE")
	assert.False(t, ok)
}

func TestNormalizeAndRank(t *testing.T) {
	assert.Equal(t, "TEAM", Normalize(" team "))
	assert.Equal(t, "LITE", Normalize("gold"))
	assert.Greater(t, Rank("SCALE"), Rank("TEAM"))
	assert.Greater(t, Rank("TEAM"), Rank("LITE"))
	assert.Greater(t, Rank("LITE"), Rank("unknown"))
}

func TestDefaultIsShared(t *testing.T) {
	c := Default()
	assert.NotNil(t, c)
	assert.Same(t, c, Default())
	assert.Equal(t, c.LimitsFor("LITE"), c.LimitsFor(""))
}
