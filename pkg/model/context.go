package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ContextEntry is one clarifying question and the user's answer to it
type ContextEntry struct {
	Question string `json:"question" firestore:"question"`
	Answer   string `json:"answer" firestore:"answer"`
}

// UserContext maps clarifying questions to answers. It is kept as an ordered
// slice so that display order follows the order questions were answered; the
// JSON form is a plain object with keys in that same order.
type UserContext []ContextEntry

func (c UserContext) Len() int {
	return len(c)
}

// QuestionKey is the identity of a clarifying question: case and runs of
// whitespace are ignored.
func QuestionKey(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

// Get returns the answer recorded for question, matched by QuestionKey
func (c UserContext) Get(question string) (string, bool) {
	key := QuestionKey(question)
	for _, e := range c {
		if QuestionKey(e.Question) == key {
			return e.Answer, true
		}
	}
	return "", false
}

// Set records answer for question, replacing an earlier answer in place. The
// earlier wording of the question is kept.
func (c UserContext) Set(question, answer string) UserContext {
	key := QuestionKey(question)
	for i := range c {
		if QuestionKey(c[i].Question) == key {
			c[i].Answer = answer
			return c
		}
	}
	return append(c, ContextEntry{Question: question, Answer: answer})
}

// Merge applies every entry of other onto c
func (c UserContext) Merge(other UserContext) UserContext {
	out := c.Clone()
	for _, e := range other {
		out = out.Set(e.Question, e.Answer)
	}
	return out
}

func (c UserContext) Clone() UserContext {
	if c == nil {
		return nil
	}
	out := make(UserContext, len(c))
	copy(out, c)
	return out
}

// Map returns the context as a plain map; order is lost
func (c UserContext) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, e := range c {
		m[e.Question] = e.Answer
	}
	return m
}

func (c UserContext) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Question)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal context question")
		}
		value, err := json.Marshal(e.Answer)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal context answer")
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *UserContext) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return goerr.Wrap(err, "failed to read context object")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return goerr.New("context must be a JSON object", goerr.V("token", tok))
	}

	var out UserContext
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return goerr.Wrap(err, "failed to read context key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return goerr.New("context key must be a string", goerr.V("token", keyTok))
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return goerr.Wrap(err, "failed to read context answer", goerr.V("question", key))
		}
		out = out.Set(key, value)
	}

	*c = out
	return nil
}
