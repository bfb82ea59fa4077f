package scan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "ocr": {"text": "Net Wt 12 oz"},
  "violations": [
    {"type": "allergen", "message": "Missing allergen statement", "severity": "high", "category": "Allergens", "location": "back panel"},
    {"type": "font", "message": "Font too small", "location": {"x": 1, "y": 2}}
  ],
  "analysis": {"overallScore": 72, "compliantItems": ["Net quantity"], "nextSteps": ["Add allergen statement"]}
}`

func testClient(url string) *Client {
	return &Client{
		URL:            url,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		HTTPClient:     &http.Client{Timeout: 5 * time.Second},
	}
}

func TestAnalyze_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var in map[string]string
		require.NoError(t, json.Unmarshal(body, &in))
		assert.Equal(t, "https://files.test/label.png", in["file_url"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Analyze(context.Background(), "https://files.test/label.png")
	require.NoError(t, err)
	assert.Equal(t, 72, res.Analysis.OverallScore)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, "back panel", res.Violations[0].LocationText())
	assert.JSONEq(t, `{"x":1,"y":2}`, res.Violations[1].LocationText())
	assert.JSONEq(t, `["Net quantity"]`, string(res.CompliantItemsJSON()))
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Analyze(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, 72, res.Analysis.OverallScore)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestAnalyze_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), "f")
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestAnalyze_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad file", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), "f")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAnalyze_NotConfigured(t *testing.T) {
	_, err := testClient("").Analyze(context.Background(), "f")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNormalizeNextSteps(t *testing.T) {
	raw := json.RawMessage(`["Plain", {"title": "Allergens", "detail": "Add statement"}, {"message": "Check font"}, {"action": "Reprint"}, {"foo": 1}]`)
	assert.Equal(t, []string{
		"Plain",
		"Allergens: Add statement",
		"Check font",
		"Reprint",
		`{"foo": 1}`,
	}, NormalizeNextSteps(raw))

	assert.Equal(t, []string{"Single"}, NormalizeNextSteps(json.RawMessage(`"Single"`)))
	assert.Empty(t, NormalizeNextSteps(nil))
}

func TestEmptyResult(t *testing.T) {
	r := Empty()
	assert.JSONEq(t, `{}`, string(r.OCRJSON()))
	assert.JSONEq(t, `[]`, string(r.NextStepsJSON()))
	assert.Equal(t, 0, r.Analysis.OverallScore)
}
