package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrNoPerspectives        = goerr.New("no perspectives")
	ErrDuplicatePerspective  = goerr.New("duplicate perspective name")
	ErrEmptyPerspectiveField = goerr.New("perspective name or advice is empty")
)

// Perspective is a named advisory viewpoint, e.g. "Close Friend".
type Perspective struct {
	Name   string `json:"name" firestore:"name"`
	Advice string `json:"advice" firestore:"advice"`
}

// AdviceResult holds the perspectives generated for one question. Slice order
// is presentation order.
type AdviceResult struct {
	Perspectives []Perspective `json:"perspectives"`
}

// Validate checks that the result has at least one perspective, that names are
// unique (case-insensitive) and that no field is blank.
func (a *AdviceResult) Validate() error {
	if a == nil || len(a.Perspectives) == 0 {
		return ErrNoPerspectives
	}

	seen := make(map[string]struct{}, len(a.Perspectives))
	for _, p := range a.Perspectives {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Advice) == "" {
			return goerr.Wrap(ErrEmptyPerspectiveField, "invalid perspective", goerr.V("name", p.Name))
		}
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, ok := seen[key]; ok {
			return goerr.Wrap(ErrDuplicatePerspective, "invalid advice result", goerr.V("name", p.Name))
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Find returns the perspective with the given name
func (a *AdviceResult) Find(name string) (Perspective, bool) {
	if a == nil {
		return Perspective{}, false
	}
	for _, p := range a.Perspectives {
		if p.Name == name {
			return p, true
		}
	}
	return Perspective{}, false
}

func (a *AdviceResult) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, len(a.Perspectives))
	for i, p := range a.Perspectives {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy
func (a *AdviceResult) Clone() *AdviceResult {
	if a == nil {
		return nil
	}
	out := &AdviceResult{Perspectives: make([]Perspective, len(a.Perspectives))}
	copy(out.Perspectives, a.Perspectives)
	return out
}

// Trait is presentation metadata attached to a perspective name. It never
// affects conversation behaviour.
type Trait struct {
	Color string `json:"color"`
	Trait string `json:"trait"`
}

var DefaultTrait = Trait{Color: "slate", Trait: "Balanced perspective"}
