package billing

import (
	"strings"

	"github.com/ManuelReschke/LabelFox/app/models"
)

const metadataWorkspaceKey = "workspaceId"

// normalizeInterval maps a provider interval to the stored enum. Unknown
// intervals are stored as NULL.
func normalizeInterval(interval string) *string {
	var v string
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "month":
		v = models.BillingIntervalMonth
	case "year":
		v = models.BillingIntervalYear
	default:
		return nil
	}
	return &v
}

func isCanceledStatus(status string) bool {
	return strings.ToLower(strings.TrimSpace(status)) == "canceled"
}

func metadataWorkspaceID(md map[string]string) string {
	if md == nil {
		return ""
	}
	return strings.TrimSpace(md[metadataWorkspaceKey])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
