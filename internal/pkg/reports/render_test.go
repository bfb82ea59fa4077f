package reports

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/LabelFox/app/models"
)

func sampleData() *Data {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	labels := []models.Label{
		{ID: "l1", Versions: []models.LabelVersion{version("v1", models.LabelStatusScanned, 70, now.Add(-time.Hour), models.SeverityHigh)}},
	}
	return BuildData("October", models.ReportTypeMonthly, now, now.Add(-24*time.Hour), now, labels)
}

func TestRenderCSV(t *testing.T) {
	body, err := Render(models.ReportFormatCSV, sampleData())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value", "Description"}, rows[0])
	assert.Equal(t, []string{"Report Name", "October", "Name of the generated report"}, rows[1])
	assert.Equal(t, "Total Products", rows[4][0])
	assert.Equal(t, "1", rows[4][1])

	last := rows[len(rows)-1]
	assert.Equal(t, "Recommendation 1", last[0])
	assert.Equal(t, "Address 1 high-severity violations", last[1])
}

func TestRenderPDF(t *testing.T) {
	body, err := Render(models.ReportFormatPDF, sampleData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render("xlsx", sampleData())
	assert.Error(t, err)
}
