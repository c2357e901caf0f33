// Package slots fills structured parameters of a recognized intent.
package slots

import (
	"context"
	"fmt"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/sahilm/fuzzy"
)

// SlotFiller completes the slots of a fused result. Fillers never return an
// error: anything that goes wrong leaves the affected slots unset.
type SlotFiller interface {
	Name() string
	FillSlots(ctx context.Context, res *model.IntentResult, originalText string, rc model.Context) *model.IntentResult
}

// Registry holds fillers in registration order. The first one is the default.
type Registry struct {
	fillers []SlotFiller
	index   map[string]int
}

// NewRegistry registers fillers in order
func NewRegistry(fillers ...SlotFiller) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, f := range fillers {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a filler. Names must be unique.
func (r *Registry) Register(f SlotFiller) error {
	if f == nil || f.Name() == "" {
		return fmt.Errorf("slot filler must have a name")
	}
	if _, dup := r.index[f.Name()]; dup {
		return fmt.Errorf("slot filler %q already registered", f.Name())
	}
	r.index[f.Name()] = len(r.fillers)
	r.fillers = append(r.fillers, f)
	return nil
}

// Names lists filler names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.fillers))
	for i, f := range r.fillers {
		names[i] = f.Name()
	}
	return names
}

// Len returns the number of registered fillers
func (r *Registry) Len() int {
	return len(r.fillers)
}

// Default returns the first registered filler, or nil when empty
func (r *Registry) Default() SlotFiller {
	if len(r.fillers) == 0 {
		return nil
	}
	return r.fillers[0]
}

// Resolve returns the filler called name. An empty or unknown name yields
// the default filler and false.
func (r *Registry) Resolve(name string) (SlotFiller, bool) {
	if i, ok := r.index[name]; ok {
		return r.fillers[i], true
	}
	return r.Default(), false
}

// Suggest returns the registered name closest to name, or ""
func (r *Registry) Suggest(name string) string {
	if name == "" {
		return ""
	}
	matches := fuzzy.Find(name, r.Names())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
