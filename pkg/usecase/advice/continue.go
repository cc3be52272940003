package advice

import (
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

//go:embed prompt/continue.md
var continuePromptRaw string

var continuePromptTmpl = template.Must(template.New("continue").Parse(continuePromptRaw))

// ContinueAdvice answers newMessage in the voice of perspective. history holds
// the deep-dive transcript before newMessage. A failed model call returns
// model.ContinuationPlaceholder instead of an error.
func (g *Gateway) ContinueAdvice(ctx context.Context, perspective string, history []model.Message, newMessage string) (string, error) {
	logger := logging.From(ctx)

	prompt, err := renderPrompt(continuePromptTmpl, map[string]any{
		"Perspective": perspective,
		"History":     history,
		"Message":     newMessage,
	})
	if err != nil {
		return "", err
	}

	text, err := g.generate(ctx, prompt, g.config(nil))
	if err != nil {
		logger.Warn("continuation failed", "error", err, "perspective", perspective)
		return model.ContinuationPlaceholder, nil
	}

	return strings.TrimSpace(stripCodeFence(text)), nil
}
