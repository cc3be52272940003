package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrGenerationFailed is returned when advice could not be generated. It is
	// the only model failure surfaced to the user; they may retry.
	ErrGenerationFailed = goerr.New("advice generation failed")

	ErrRecordNotFound = goerr.New("conversation record not found")
)

// ContinuationPlaceholder replaces a deep-dive answer when the model call fails
const ContinuationPlaceholder = "(Unable to generate advice. Please try again.)"
