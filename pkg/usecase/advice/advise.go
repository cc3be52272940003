package advice

import (
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
	"github.com/romirm/advice-app/pkg/utils/schema"
)

//go:embed prompt/advice.md
var advicePromptRaw string

var advicePromptTmpl = template.Must(template.New("advice").Parse(advicePromptRaw))

type perspectiveResponse struct {
	Name   string `json:"name" jsonschema:"Role or relationship, e.g. Close Friend"`
	Advice string `json:"advice" jsonschema:"2-3 sentences of advice in this perspective's voice"`
}

type adviceResponse struct {
	Perspectives []perspectiveResponse `json:"perspectives" jsonschema:"Distinct perspectives on the problem"`
}

var adviceSchema = schema.MustFor[adviceResponse]()

// GetAdvice generates advice from several inferred perspectives. Any failure
// is reported as model.ErrGenerationFailed; no advice is ever fabricated.
func (g *Gateway) GetAdvice(ctx context.Context, question string, uc model.UserContext) (*model.AdviceResult, error) {
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	prompt, err := renderPrompt(advicePromptTmpl, map[string]any{
		"Question": question,
		"Context":  uc,
		"Count":    g.perspectiveCount,
	})
	if err != nil {
		return nil, err
	}

	text, err := g.generate(ctx, prompt, g.config(adviceSchema))
	if err != nil {
		return nil, goerr.Wrap(model.ErrGenerationFailed, "failed to generate advice", goerr.V("cause", err))
	}

	var resp adviceResponse
	if err := decodeJSON(text, &resp); err != nil {
		return nil, goerr.Wrap(model.ErrGenerationFailed, "failed to decode advice", goerr.V("cause", err))
	}

	result := &model.AdviceResult{
		Perspectives: make([]model.Perspective, 0, len(resp.Perspectives)),
	}
	for _, p := range resp.Perspectives {
		result.Perspectives = append(result.Perspectives, model.Perspective{
			Name:   strings.TrimSpace(p.Name),
			Advice: strings.TrimSpace(p.Advice),
		})
	}

	if err := result.Validate(); err != nil {
		return nil, goerr.Wrap(model.ErrGenerationFailed, "model returned unusable advice", goerr.V("cause", err))
	}

	logging.From(ctx).Debug("advice generated", "perspectives", result.Names())
	return result, nil
}
