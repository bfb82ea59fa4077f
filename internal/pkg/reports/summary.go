package reports

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ManuelReschke/LabelFox/app/models"
)

// CompliantScore is the minimum overall score of a compliant product.
const CompliantScore = 80

const topViolationLimit = 5

// Summary is persisted with a completed report.
type Summary struct {
	TotalProducts      int `json:"total_products"`
	AvgComplianceScore int `json:"avg_compliance_score"`
	TotalViolations    int `json:"total_violations"`
	HighViolations     int `json:"high_violations"`
	MediumViolations   int `json:"medium_violations"`
	LowViolations      int `json:"low_violations"`
	ComplianceRate     int `json:"compliance_rate"`
	ApprovedVersions   int `json:"approved_versions"`
	RejectedVersions   int `json:"rejected_versions"`
	PendingReview      int `json:"pending_review"`
	ApprovalRate       int `json:"approval_rate"`
}

type TopViolation struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

type Recommendation struct {
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Effort   string `json:"effort"`
	Details  string `json:"details,omitempty"`
}

type RejectedVersion struct {
	LabelID    string     `json:"label_id"`
	VersionID  string     `json:"version_id"`
	Comment    string     `json:"comment"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
	RejectedBy string     `json:"rejected_by"`
	RejectedAt *time.Time `json:"rejected_at"`
}

type ApprovedVersion struct {
	LabelID    string     `json:"label_id"`
	VersionID  string     `json:"version_id"`
	ApprovedBy string     `json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
}

// Data is everything a rendered report shows.
type Data struct {
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	GeneratedAt      time.Time         `json:"generated_at"`
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	Summary          Summary           `json:"summary"`
	TopViolations    []TopViolation    `json:"top_violations"`
	Recommendations  []Recommendation  `json:"recommendations"`
	RejectedVersions []RejectedVersion `json:"rejected_versions"`
	ApprovedVersions []ApprovedVersion `json:"approved_versions"`
}

// BuildData computes report metrics over the latest version of every label
// analyzed inside [start, end]. Labels must carry their versions newest first.
func BuildData(name, reportType string, generatedAt, start, end time.Time, labels []models.Label) *Data {
	data := &Data{
		Name:             name,
		Type:             reportType,
		GeneratedAt:      generatedAt,
		Start:            start,
		End:              end,
		TopViolations:    []TopViolation{},
		Recommendations:  []Recommendation{},
		RejectedVersions: []RejectedVersion{},
		ApprovedVersions: []ApprovedVersion{},
	}

	var versions []models.LabelVersion
	for _, l := range labels {
		if len(l.Versions) == 0 {
			continue
		}
		v := l.Versions[0]
		if v.AnalyzedAt.Before(start) || v.AnalyzedAt.After(end) {
			continue
		}
		versions = append(versions, v)
	}

	s := &data.Summary
	s.TotalProducts = len(versions)

	var violations []models.Violation
	scoreSum, compliant := 0, 0
	for _, v := range versions {
		scoreSum += v.OverallScore
		if v.OverallScore >= CompliantScore {
			compliant++
		}
		violations = append(violations, v.Violations...)

		switch v.Status {
		case models.LabelStatusApproved:
			s.ApprovedVersions++
			data.ApprovedVersions = append(data.ApprovedVersions, ApprovedVersion{
				LabelID:    v.LabelID,
				VersionID:  v.ID,
				ApprovedBy: v.ApprovedBy,
				ApprovedAt: v.ApprovedAt,
				AnalyzedAt: v.AnalyzedAt,
			})
		case models.LabelStatusRejected:
			s.RejectedVersions++
			if strings.TrimSpace(v.ReviewComment) != "" {
				data.RejectedVersions = append(data.RejectedVersions, RejectedVersion{
					LabelID:    v.LabelID,
					VersionID:  v.ID,
					Comment:    v.ReviewComment,
					AnalyzedAt: v.AnalyzedAt,
					RejectedBy: v.RejectedBy,
					RejectedAt: v.RejectedAt,
				})
			}
		case models.LabelStatusScanned:
			s.PendingReview++
		}
	}

	for _, v := range violations {
		switch v.Severity {
		case models.SeverityHigh:
			s.HighViolations++
		case models.SeverityMedium:
			s.MediumViolations++
		case models.SeverityLow:
			s.LowViolations++
		}
	}
	s.TotalViolations = len(violations)
	s.AvgComplianceScore = percent(scoreSum, s.TotalProducts, 1)
	s.ComplianceRate = percent(compliant, s.TotalProducts, 100)
	s.ApprovalRate = percent(s.ApprovedVersions, s.TotalProducts, 100)

	data.TopViolations = topViolations(violations)
	data.Recommendations = recommendations(s, data.RejectedVersions)
	return data
}

func percent(part, total, scale int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part*scale) / float64(total)))
}

// topViolations groups by type. Severity and category come from the first
// occurrence of the type.
func topViolations(violations []models.Violation) []TopViolation {
	index := map[string]int{}
	out := []TopViolation{}
	for _, v := range violations {
		if i, ok := index[v.Type]; ok {
			out[i].Count++
			continue
		}
		severity, category := v.Severity, v.Category
		if severity == "" {
			severity = models.SeverityMedium
		}
		if category == "" {
			category = "General"
		}
		index[v.Type] = len(out)
		out = append(out, TopViolation{Type: v.Type, Count: 1, Severity: severity, Category: category})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topViolationLimit {
		out = out[:topViolationLimit]
	}
	return out
}

func recommendations(s *Summary, rejected []RejectedVersion) []Recommendation {
	out := []Recommendation{}
	if s.HighViolations > 0 {
		out = append(out, Recommendation{
			Priority: "high",
			Action:   fmt.Sprintf("Address %d high-severity violations", s.HighViolations),
			Impact:   fmt.Sprintf("Will resolve %d high-severity violations", s.HighViolations),
			Effort:   "high",
		})
	}
	if s.MediumViolations > 0 {
		out = append(out, Recommendation{
			Priority: "medium",
			Action:   fmt.Sprintf("Address %d medium-severity violations", s.MediumViolations),
			Impact:   fmt.Sprintf("Will resolve %d medium-severity violations", s.MediumViolations),
			Effort:   "medium",
		})
	}
	if s.LowViolations > 0 {
		out = append(out, Recommendation{
			Priority: "low",
			Action:   fmt.Sprintf("Review %d low-severity violations", s.LowViolations),
			Impact:   "May improve compliance",
			Effort:   "low",
		})
	}
	if len(rejected) > 0 {
		out = append(out, Recommendation{
			Priority: "high",
			Action:   fmt.Sprintf("Review and address %d rejected label versions", len(rejected)),
			Impact:   "Will improve approval rate and compliance",
			Effort:   "medium",
			Details:  "Common rejection reasons: " + rejectionReasons(rejected),
		})
	}
	return out
}

var rejectionTerms = []string{"disclaimer", "placement", "format", "missing", "incorrect", "size"}

func rejectionReasons(rejected []RejectedVersion) string {
	var found []string
	for _, term := range rejectionTerms {
		for _, r := range rejected {
			if strings.Contains(strings.ToLower(r.Comment), term) {
				found = append(found, term)
				break
			}
		}
	}
	if len(found) == 0 {
		return "Various compliance issues"
	}
	return strings.Join(found, ", ")
}

// DefaultRange returns the range used when none was requested. Quarterly
// reports cover the quarter to date, all others the month to date.
func DefaultRange(reportType string, now time.Time) (time.Time, time.Time) {
	month := now.Month()
	if reportType == models.ReportTypeQuarterly {
		month = time.Month((int(now.Month())-1)/3*3 + 1)
	}
	return time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location()), now
}
