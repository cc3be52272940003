package advice

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
)

var ErrMalformedResponse = goerr.New("malformed model response")

const codeFence = "```"

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag such as ```json, from a model response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, codeFence) {
		return s
	}

	body := strings.TrimPrefix(s, codeFence)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, codeFence)
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// decodeJSON is the single decoder for structured model output
func decodeJSON(text string, v any) error {
	body := stripCodeFence(text)
	if body == "" {
		return goerr.Wrap(ErrMalformedResponse, "empty response body")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return goerr.Wrap(ErrMalformedResponse, "failed to unmarshal model response",
			goerr.V("body", body),
			goerr.V("cause", err.Error()))
	}
	return nil
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// StripCodeFenceForTest is a test helper that exposes stripCodeFence
func StripCodeFenceForTest(s string) string {
	return stripCodeFence(s)
}

// DecodeJSONForTest is a test helper that exposes decodeJSON
func DecodeJSONForTest(text string, v any) error {
	return decodeJSON(text, v)
}
