package persona

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

//go:embed policy/default.rego
var defaultPolicy string

const traitQuery = "data.persona.trait"

// regoPrintHook forwards Rego print() statements to the debug log
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Decorator looks up presentation traits for perspective names with a Rego
// policy. The policy defines data.persona.trait as {"color", "trait"} for
// input {"name"}.
type Decorator struct {
	query *rego.PreparedEvalQuery
}

// New prepares the decorator. With an empty policyDir, or a directory holding
// no .rego files, the embedded default policy is used.
func New(ctx context.Context, policyDir string) (*Decorator, error) {
	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		modules = append(modules, rego.Module("default.rego", defaultPolicy))
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(traitQuery))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare persona policy", goerr.V("policy_dir", policyDir))
	}

	return &Decorator{query: &prepared}, nil
}

func loadModules(policyDir string) ([]func(*rego.Rego), error) {
	if policyDir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("policy_dir", policyDir))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}
	return modules, nil
}

// Trait returns the trait for name, or model.DefaultTrait when the policy has
// no answer or fails.
func (d *Decorator) Trait(ctx context.Context, name string) model.Trait {
	trait, err := d.Eval(ctx, name)
	if err != nil {
		logging.From(ctx).Warn("failed to evaluate persona policy", "error", err, "name", name)
		return model.DefaultTrait
	}
	if trait == nil {
		return model.DefaultTrait
	}
	return *trait
}

// Eval evaluates the policy for name. A nil trait means the policy has no
// entry for it.
func (d *Decorator) Eval(ctx context.Context, name string) (*model.Trait, error) {
	rs, err := d.query.Eval(ctx,
		rego.EvalInput(map[string]any{"name": name}),
		rego.EvalPrintHook(&regoPrintHook{ctx: ctx}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate persona policy", goerr.V("name", name))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid persona result: not an object", goerr.V("name", name))
	}

	trait := model.Trait{
		Color: getString(data, "color"),
		Trait: getString(data, "trait"),
	}
	if trait.Color == "" {
		trait.Color = model.DefaultTrait.Color
	}
	if trait.Trait == "" {
		trait.Trait = model.DefaultTrait.Trait
	}
	return &trait, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
