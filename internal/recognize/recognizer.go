// Package recognize holds the intent recognizers run by the engine.
// Every recognizer is stateless per call and reads the current rule
// generation from the store, so a reload is visible to the next call.
package recognize

import (
	"context"

	"github.com/ppiankov/intentra/internal/model"
)

// Recognizer classifies text. A nil result with a nil error means no match.
type Recognizer interface {
	// Name identifies the recognizer in logs, metrics and timeouts
	Name() string

	// Parse returns the recognizer's best guess for text
	Parse(ctx context.Context, text string, rc model.Context) (*model.IntentResult, error)
}

// ParseFunc is the signature of Recognizer.Parse
type ParseFunc func(ctx context.Context, text string, rc model.Context) (*model.IntentResult, error)

type funcRecognizer struct {
	name string
	fn   ParseFunc
}

// Func wraps fn as a named Recognizer
func Func(name string, fn ParseFunc) Recognizer {
	return &funcRecognizer{name: name, fn: fn}
}

func (f *funcRecognizer) Name() string { return f.name }

func (f *funcRecognizer) Parse(ctx context.Context, text string, rc model.Context) (*model.IntentResult, error) {
	return f.fn(ctx, text, rc)
}
