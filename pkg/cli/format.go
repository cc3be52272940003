package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"

	timeLayout = "2006-01-02 15:04"
)

func formatFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "format",
		Aliases:     []string{"f"},
		Usage:       "Output format (text, json, yaml)",
		Value:       formatText,
		Sources:     cli.EnvVars("ADVICE_OUTPUT_FORMAT"),
		Destination: dst,
	}
}

// writeValue writes v as JSON or YAML. YAML keys follow the JSON field names
// and order.
func writeValue(w io.Writer, format string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}

	switch format {
	case formatJSON:
		_, err = fmt.Fprintf(w, "%s\n", raw)
		return err

	case formatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return goerr.Wrap(err, "failed to convert output to yaml")
		}
		clearStyle(&node)
		out, err := yaml.Marshal(&node)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal yaml")
		}
		_, err = w.Write(out)
		return err

	default:
		return goerr.New("unsupported format", goerr.V("format", format))
	}
}

// clearStyle drops the flow and quoting styles inherited from JSON so the
// document is emitted in block style
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

func writeRecordList(w io.Writer, records []*model.ConversationRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No conversations yet")
		return
	}
	for _, r := range records {
		selected := "-"
		if name := r.Selected(); name != "" {
			selected = name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(timeLayout), selected, oneLine(r.Question, 60))
	}
}

func writeRecord(w io.Writer, r *model.ConversationRecord) {
	fmt.Fprintf(w, "ID:       %s\n", r.ID)
	fmt.Fprintf(w, "Created:  %s\n", r.CreatedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "Updated:  %s\n", r.UpdatedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "Question: %s\n", r.Question)

	if len(r.Context) > 0 {
		fmt.Fprintln(w, "\nContext:")
		for _, e := range r.Context {
			fmt.Fprintf(w, "  Q: %s\n  A: %s\n", e.Question, e.Answer)
		}
	}

	fmt.Fprintln(w, "\nPerspectives:")
	for i, p := range r.Perspectives {
		fmt.Fprintf(w, "  %d. %s\n     %s\n", i+1, p.Name, p.Advice)
	}

	if name := r.Selected(); name != "" {
		fmt.Fprintf(w, "\nConversation with %s:\n", name)
		writeTranscript(w, name, r.Conversation)
	}
}

func writeTranscript(w io.Writer, perspective string, msgs []model.Message) {
	for _, m := range msgs {
		speaker := "You"
		if m.Role == model.RoleAssistant {
			speaker = perspective
		}
		fmt.Fprintf(w, "  [%s] %s\n", speaker, m.Content)
	}
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}
