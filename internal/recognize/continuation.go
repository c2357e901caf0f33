package recognize

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/intentra/internal/model"
)

const (
	continuationConfidence = 0.4
	continuationMaxRunes   = 10
	continueLastIntent     = "continue_last_intent"
)

// Continuation guesses that a short reply continues the previous intent
type Continuation struct{}

// NewContinuation creates a continuation recognizer
func NewContinuation() *Continuation {
	return &Continuation{}
}

// Name returns "continuation"
func (c *Continuation) Name() string {
	return model.SourceContinuation
}

// Parse returns the last intent at low confidence for short replies
func (c *Continuation) Parse(_ context.Context, text string, rc model.Context) (*model.IntentResult, error) {
	last := rc.LastIntent()
	if last == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) >= continuationMaxRunes {
		return nil, nil
	}

	res := model.NewResult(last, continuationConfidence, model.SourceContinuation)
	res.RawMatches["source"] = model.CtxLastIntent
	res.Metadata[model.MetaContinuationReason] = continueLastIntent
	return res, nil
}
