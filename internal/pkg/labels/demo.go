package labels

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/scan"
)

const (
	DemoMessage       = "Sign up to view the full FDA audit report and unlock all features."
	demoNextStepLimit = 6
)

// DemoResult is the partial analysis shown to anonymous visitors.
type DemoResult struct {
	Partial         bool             `json:"partial"`
	Message         string           `json:"message"`
	Violations      []scan.Violation `json:"violations"`
	Analysis        DemoAnalysis     `json:"analysis"`
	OCR             json.RawMessage  `json:"ocr"`
	TotalViolations int              `json:"total_violations"`
}

type DemoAnalysis struct {
	OverallScore   int             `json:"overall_score"`
	CompliantItems json.RawMessage `json:"compliant_items"`
	NextSteps      []string        `json:"next_steps"`
}

// DemoScan stores the image as a demo label of the demo workspace and
// returns a partial analysis. Demo labels never count against any plan.
func (s *Service) DemoScan(ctx context.Context, demoWorkspaceID string, up Upload) (*DemoResult, error) {
	const op = "labels.DemoScan"
	if demoWorkspaceID == "" {
		return nil, apperr.Configuration(op, "Demo workspace is not configured")
	}

	key, fileURL, err := s.upload(ctx, demoWorkspaceID, up)
	if err != nil {
		return nil, err
	}
	label := &models.Label{
		WorkspaceID: demoWorkspaceID,
		Name:        up.Filename,
		FileURL:     fileURL,
		ObjectKey:   key,
		IsDemo:      true,
	}
	if err := s.db.WithContext(ctx).Create(label).Error; err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, fileURL)
	if err != nil {
		log.Errorf("[Labels] Demo scan of %s failed: %v", label.ID, err)
		return nil, apperr.ExternalProvider(op, "Label analysis is currently unavailable", err)
	}

	steps := scan.NormalizeNextSteps(result.Analysis.NextSteps)
	if len(steps) > demoNextStepLimit {
		steps = steps[:demoNextStepLimit]
	}
	violations := result.Violations
	if violations == nil {
		violations = []scan.Violation{}
	}
	return &DemoResult{
		Partial:    true,
		Message:    DemoMessage,
		Violations: violations,
		Analysis: DemoAnalysis{
			OverallScore:   result.Analysis.OverallScore,
			CompliantItems: result.CompliantItemsJSON(),
			NextSteps:      steps,
		},
		OCR:             result.OCRJSON(),
		TotalViolations: len(violations),
	}, nil
}
