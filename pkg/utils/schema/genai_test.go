package schema_test

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/romirm/advice-app/pkg/utils/schema"
	"google.golang.org/genai"
)

type sample struct {
	Name  string   `json:"name" jsonschema:"display name"`
	Tags  []string `json:"tags"`
	Count int      `json:"count"`
	OK    bool     `json:"ok"`
}

func TestFor(t *testing.T) {
	s, err := schema.For[sample]()
	gt.NoError(t, err)
	gt.V(t, s.Type).Equal(genai.TypeObject)
	gt.V(t, s.Properties["name"].Type).Equal(genai.TypeString)
	gt.V(t, s.Properties["name"].Description).Equal("display name")
	gt.V(t, s.Properties["tags"].Type).Equal(genai.TypeArray)
	gt.V(t, s.Properties["tags"].Items.Type).Equal(genai.TypeString)
	gt.V(t, s.Properties["count"].Type).Equal(genai.TypeInteger)
	gt.V(t, s.Properties["ok"].Type).Equal(genai.TypeBoolean)
}

func TestToGenai(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		s, err := schema.ToGenai(nil)
		gt.NoError(t, err)
		gt.V(t, s == nil).Equal(true)
	})

	t.Run("enum and required", func(t *testing.T) {
		s, err := schema.ToGenai(&jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"role": {Type: "string", Enum: []any{"user", "assistant"}},
			},
			Required: []string{"role"},
		})
		gt.NoError(t, err)
		gt.A(t, s.Properties["role"].Enum).Length(2)
		gt.A(t, s.Required).Length(1)
	})

	t.Run("nullable type list", func(t *testing.T) {
		s, err := schema.ToGenai(&jsonschema.Schema{Types: []string{"null", "string"}})
		gt.NoError(t, err)
		gt.V(t, s.Type).Equal(genai.TypeString)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := schema.ToGenai(&jsonschema.Schema{Type: "tuple"})
		gt.Error(t, err)
	})
}
