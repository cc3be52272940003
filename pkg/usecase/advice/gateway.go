package advice

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/adapter"
	"google.golang.org/genai"
)

const (
	DefaultHardCap          = 5
	DefaultPerspectiveCount = 3
	DefaultTemperature      = 0.7
)

var ErrEmptyResponse = goerr.New("empty model response")

// Gateway is the only component that talks to the language model. It turns
// the three conversation needs (assess, advise, continue) into prompts and
// decodes the answers.
type Gateway struct {
	gemini           adapter.Gemini
	hardCap          int
	perspectiveCount int
	temperature      float32
}

type Option func(*Gateway)

// WithHardCap sets the context size at which assessment stops asking the
// model and reports enough info.
func WithHardCap(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.hardCap = n
		}
	}
}

func WithPerspectiveCount(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.perspectiveCount = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(g *Gateway) {
		g.temperature = t
	}
}

func New(gemini adapter.Gemini, opts ...Option) *Gateway {
	g := &Gateway{
		gemini:           gemini,
		hardCap:          DefaultHardCap,
		perspectiveCount: DefaultPerspectiveCount,
		temperature:      DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) HardCap() int {
	return g.hardCap
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute prompt template", goerr.V("template", tmpl.Name()))
	}
	return buf.String(), nil
}

func (g *Gateway) config(responseSchema *genai.Schema) *genai.GenerateContentConfig {
	thinkingBudget := int32(0)
	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}
	if responseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = responseSchema
	}
	return cfg
}

func (g *Gateway) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call model")
	}

	text := adapter.ResponseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
