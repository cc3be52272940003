package model

import "strings"

// FallbackReasoning marks an assessment produced locally after the model call
// failed or returned an unusable response.
const FallbackReasoning = "fallback"

// InfoAssessment is the transient answer to "is there enough context to give
// advice?". It is never persisted.
type InfoAssessment struct {
	HasEnoughInfo     bool     `json:"hasEnoughInfo"`
	FollowUpQuestions []string `json:"followUpQuestions,omitempty"`
	Reasoning         string   `json:"reasoning,omitempty"`
}

// EnoughInfo returns an assessment that lets the conversation proceed to advice
func EnoughInfo(reasoning string) *InfoAssessment {
	return &InfoAssessment{HasEnoughInfo: true, Reasoning: reasoning}
}

// Normalize trims follow-up questions, drops blank entries and duplicates by
// QuestionKey, and treats an assessment without usable questions as having
// enough info.
func (a *InfoAssessment) Normalize() {
	if a.HasEnoughInfo {
		a.FollowUpQuestions = nil
		return
	}

	seen := make(map[string]struct{}, len(a.FollowUpQuestions))
	questions := make([]string, 0, len(a.FollowUpQuestions))
	for _, q := range a.FollowUpQuestions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := QuestionKey(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		questions = append(questions, q)
	}

	a.FollowUpQuestions = questions
	if len(questions) == 0 {
		a.HasEnoughInfo = true
	}
}
