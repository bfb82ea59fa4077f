package scan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the ML service response.
type Result struct {
	OCR        json.RawMessage `json:"ocr"`
	Violations []Violation     `json:"violations"`
	Analysis   Analysis        `json:"analysis"`
}

type Violation struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion"`
	Citation   string          `json:"citation"`
	Severity   string          `json:"severity"`
	Category   string          `json:"category"`
	Location   json.RawMessage `json:"location,omitempty"`
}

// LocationText returns the location as plain text. Structured locations are
// kept as their JSON encoding.
func (v Violation) LocationText() string {
	raw := strings.TrimSpace(string(v.Location))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Location, &s); err == nil {
		return s
	}
	return raw
}

type Analysis struct {
	OverallScore   int             `json:"overallScore"`
	CompliantItems json.RawMessage `json:"compliantItems"`
	NextSteps      json.RawMessage `json:"nextSteps"`
	AnalyzedAt     string          `json:"analyzedAt,omitempty"`
}

// Empty is stored when the ML service is unavailable.
func Empty() *Result {
	return &Result{
		OCR:        json.RawMessage(`{}`),
		Violations: []Violation{},
		Analysis: Analysis{
			CompliantItems: json.RawMessage(`[]`),
			NextSteps:      json.RawMessage(`[]`),
		},
	}
}

// OCRJSON returns the extraction or an empty object.
func (r *Result) OCRJSON() json.RawMessage {
	return orDefault(r.OCR, `{}`)
}

func (r *Result) CompliantItemsJSON() json.RawMessage {
	return orDefault(r.Analysis.CompliantItems, `[]`)
}

func (r *Result) NextStepsJSON() json.RawMessage {
	return orDefault(r.Analysis.NextSteps, `[]`)
}

func orDefault(raw json.RawMessage, def string) json.RawMessage {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return json.RawMessage(def)
	}
	return raw
}

// NormalizeNextSteps flattens next steps into display strings. Objects use
// "title: detail", or the first of title, message, suggestion, action, detail.
func NormalizeNextSteps(raw json.RawMessage) []string {
	out := []string{}
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return out
	}

	var items []json.RawMessage
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal(raw, &items); err != nil {
			return out
		}
	} else {
		items = []json.RawMessage{raw}
	}

	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, text)
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		str := func(k string) string {
			if v, ok := obj[k].(string); ok {
				return v
			}
			return ""
		}
		switch {
		case str("title") != "" && str("detail") != "":
			out = append(out, fmt.Sprintf("%s: %s", str("title"), str("detail")))
		case str("title") != "":
			out = append(out, str("title"))
		case str("message") != "":
			out = append(out, str("message"))
		case str("suggestion") != "":
			out = append(out, str("suggestion"))
		case str("action") != "":
			out = append(out, str("action"))
		case str("detail") != "":
			out = append(out, str("detail"))
		default:
			out = append(out, string(item))
		}
	}
	return out
}
