package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/ManuelReschke/LabelFox/app/models"
)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorDanger    = [3]int{231, 76, 60}
	colorWarning   = [3]int{241, 196, 15}
	colorAccent    = [3]int{46, 204, 113}
	colorTableAlt  = [3]int{241, 245, 249}
)

// Render encodes the report in the requested format.
func Render(format string, data *Data) ([]byte, error) {
	switch format {
	case models.ReportFormatCSV:
		return RenderCSV(data)
	case models.ReportFormatPDF, "":
		return RenderPDF(data)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// RenderPDF creates a single document compliance report.
func RenderPDF(data *Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(20)
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 12, "FDA Compliance Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 8, "Report: "+data.Name, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, "Generated: "+data.GeneratedAt.Format("Jan 2, 2006 15:04"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Type: "+data.Type, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Period: %s to %s",
		data.Start.Format("Jan 2, 2006"), data.End.Format("Jan 2, 2006")), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	sectionTitle(pdf, "Summary Metrics")
	for i, row := range summaryRows(&data.Summary) {
		if i%2 == 1 {
			pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(110, 7, row[0], "", 0, "L", true, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "R", true, 0, "")
	}
	pdf.Ln(6)

	if len(data.TopViolations) > 0 {
		sectionTitle(pdf, "Top Violations")
		for i, v := range data.TopViolations {
			c := severityColor(v.Severity)
			pdf.SetFont("Arial", "B", 10)
			pdf.SetTextColor(c[0], c[1], c[2])
			pdf.CellFormat(0, 6, fmt.Sprintf("%d. %s (%d occurrences)", i+1, v.Type, v.Count), "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 8)
			pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
			pdf.CellFormat(0, 5, fmt.Sprintf("   Severity: %s, Category: %s", v.Severity, v.Category), "", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	if len(data.Recommendations) > 0 {
		sectionTitle(pdf, "Recommendations")
		for i, rec := range data.Recommendations {
			pdf.SetFont("Arial", "B", 10)
			pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
			pdf.MultiCell(0, 6, fmt.Sprintf("%d. %s", i+1, rec.Action), "", "L", false)
			pdf.SetFont("Arial", "", 8)
			pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
			pdf.MultiCell(0, 5, fmt.Sprintf("   Priority: %s, Impact: %s, Effort: %s", rec.Priority, rec.Impact, rec.Effort), "", "L", false)
			if rec.Details != "" {
				pdf.MultiCell(0, 5, "   "+rec.Details, "", "L", false)
			}
		}
		pdf.Ln(6)
	}

	if len(data.RejectedVersions) > 0 {
		sectionTitle(pdf, "Rejected Versions")
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		for _, r := range data.RejectedVersions {
			pdf.MultiCell(0, 5, fmt.Sprintf("Label %s, version %s: %s", r.LabelID, r.VersionID, r.Comment), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
}

func severityColor(severity string) [3]int {
	switch severity {
	case models.SeverityHigh:
		return colorDanger
	case models.SeverityLow:
		return colorAccent
	default:
		return colorWarning
	}
}

func summaryRows(s *Summary) [][2]string {
	return [][2]string{
		{"Total Products", strconv.Itoa(s.TotalProducts)},
		{"Average Compliance Score", fmt.Sprintf("%d%%", s.AvgComplianceScore)},
		{"Total Violations", strconv.Itoa(s.TotalViolations)},
		{"High Severity Violations", strconv.Itoa(s.HighViolations)},
		{"Medium Severity Violations", strconv.Itoa(s.MediumViolations)},
		{"Low Severity Violations", strconv.Itoa(s.LowViolations)},
		{"Compliance Rate", fmt.Sprintf("%d%%", s.ComplianceRate)},
		{"Approved Versions", strconv.Itoa(s.ApprovedVersions)},
		{"Rejected Versions", strconv.Itoa(s.RejectedVersions)},
		{"Pending Review", strconv.Itoa(s.PendingReview)},
		{"Approval Rate", fmt.Sprintf("%d%%", s.ApprovalRate)},
	}
}

// RenderCSV writes Metric,Value,Description rows.
func RenderCSV(data *Data) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	s := &data.Summary
	rows := [][]string{
		{"Metric", "Value", "Description"},
		{"Report Name", data.Name, "Name of the generated report"},
		{"Report Type", data.Type, "Type of report (monthly/quarterly/custom)"},
		{"Generated Date", data.GeneratedAt.Format("2006-01-02"), "Date when report was generated"},
		{"Total Products", strconv.Itoa(s.TotalProducts), "Total number of products analyzed"},
		{"Average Compliance Score", fmt.Sprintf("%d%%", s.AvgComplianceScore), "Average compliance score across all products"},
		{"Total Violations", strconv.Itoa(s.TotalViolations), "Total number of compliance issues found"},
		{"High Severity Violations", strconv.Itoa(s.HighViolations), "Number of high severity issues"},
		{"Medium Severity Violations", strconv.Itoa(s.MediumViolations), "Number of medium severity issues"},
		{"Low Severity Violations", strconv.Itoa(s.LowViolations), "Number of low severity issues"},
		{"Compliance Rate", fmt.Sprintf("%d%%", s.ComplianceRate), "Share of products scoring at least 80"},
		{"Approved Versions", strconv.Itoa(s.ApprovedVersions), "Latest versions approved by a reviewer"},
		{"Rejected Versions", strconv.Itoa(s.RejectedVersions), "Latest versions rejected by a reviewer"},
		{"Pending Review", strconv.Itoa(s.PendingReview), "Latest versions waiting for review"},
		{"Approval Rate", fmt.Sprintf("%d%%", s.ApprovalRate), "Share of products approved"},
	}
	for i, v := range data.TopViolations {
		rows = append(rows, []string{
			fmt.Sprintf("Violation %d", i+1),
			v.Type,
			fmt.Sprintf("%d occurrences - %s severity - %s category", v.Count, v.Severity, v.Category),
		})
	}
	for i, rec := range data.Recommendations {
		rows = append(rows, []string{
			fmt.Sprintf("Recommendation %d", i+1),
			rec.Action,
			fmt.Sprintf("Priority: %s, Impact: %s, Effort: %s", rec.Priority, rec.Impact, rec.Effort),
		})
	}

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row %q: %w", row[0], err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}
