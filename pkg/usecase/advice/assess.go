package advice

import (
	"context"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
	"github.com/romirm/advice-app/pkg/utils/schema"
)

//go:embed prompt/assess.md
var assessPromptRaw string

var assessPromptTmpl = template.Must(template.New("assess").Parse(assessPromptRaw))

// HardCapReasoning is reported when the context is already at the hard cap
const HardCapReasoning = "Enough context has been gathered."

var ErrEmptyQuestion = goerr.New("question is empty")

type assessResponse struct {
	HasEnoughInfo     bool     `json:"hasEnoughInfo" jsonschema:"Whether the question can be answered well with the information available"`
	FollowUpQuestions []string `json:"followUpQuestions,omitempty" jsonschema:"Specific follow-up questions, empty when hasEnoughInfo is true"`
	Reasoning         string   `json:"reasoning" jsonschema:"One sentence explaining the decision"`
}

var assessSchema = schema.MustFor[assessResponse]()

// AssessInformationNeeds decides whether more context is needed before advice
// can be given. Model failures never block the conversation: they yield an
// assessment with HasEnoughInfo set and FallbackReasoning.
func (g *Gateway) AssessInformationNeeds(ctx context.Context, question string, uc model.UserContext) (*model.InfoAssessment, error) {
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if uc.Len() >= g.hardCap {
		return model.EnoughInfo(HardCapReasoning), nil
	}

	logger := logging.From(ctx)

	prompt, err := renderPrompt(assessPromptTmpl, map[string]any{
		"Question":     question,
		"Context":      uc,
		"MaxQuestions": g.hardCap - uc.Len(),
	})
	if err != nil {
		return nil, err
	}

	text, err := g.generate(ctx, prompt, g.config(assessSchema))
	if err != nil {
		logger.Warn("assessment failed, proceeding to advice", "error", err)
		return model.EnoughInfo(model.FallbackReasoning), nil
	}

	var resp assessResponse
	if err := decodeJSON(text, &resp); err != nil {
		logger.Warn("assessment response is malformed, proceeding to advice", "error", err)
		return model.EnoughInfo(model.FallbackReasoning), nil
	}

	assessment := &model.InfoAssessment{
		HasEnoughInfo:     resp.HasEnoughInfo,
		FollowUpQuestions: resp.FollowUpQuestions,
		Reasoning:         resp.Reasoning,
	}
	assessment.Normalize()

	logger.Debug("information needs assessed",
		"has_enough_info", assessment.HasEnoughInfo,
		"follow_ups", len(assessment.FollowUpQuestions))

	return assessment, nil
}
