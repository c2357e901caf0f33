package slots

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/intentra/internal/llm"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/ppiankov/intentra/internal/worker"
	"go.uber.org/zap"
)

// NameDefault is the name of the regex + LLM filler
const NameDefault = "default_slot_filler"

// DefaultLLMTimeout bounds one LLM fallback call
const DefaultLLMTimeout = 2 * time.Second

// LLM fallback outcomes reported to the observer
const (
	OutcomeFilled  = "filled"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Default extracts slots with the per-slot patterns of the rule set and, when
// a provider is configured, asks it once for required slots still missing.
type Default struct {
	store    *rules.Store
	provider llm.SlotProvider
	timeout  time.Duration
	observe  func(outcome string)
	logger   *zap.Logger
}

// DefaultOption configures the default filler
type DefaultOption func(*Default)

// WithProvider enables the LLM fallback. A timeout <= 0 uses DefaultLLMTimeout.
func WithProvider(p llm.SlotProvider, timeout time.Duration) DefaultOption {
	return func(d *Default) {
		d.provider = p
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithObserver is called with the outcome of every LLM fallback call
func WithObserver(fn func(outcome string)) DefaultOption {
	return func(d *Default) {
		d.observe = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) DefaultOption {
	return func(d *Default) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDefault creates the default filler
func NewDefault(store *rules.Store, opts ...DefaultOption) *Default {
	d := &Default{
		store:   store,
		timeout: DefaultLLMTimeout,
		observe: func(string) {},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("slots.default")
	return d
}

// Name returns "default_slot_filler"
func (d *Default) Name() string {
	return NameDefault
}

// FillSlots fills the intent's declared slots that are still absent.
// Patterns run against originalText, the input before preprocessing.
func (d *Default) FillSlots(ctx context.Context, res *model.IntentResult, originalText string, _ model.Context) *model.IntentResult {
	rs := d.store.At(ctx)
	specs := rs.IntentSlots(res.Intent)
	if len(specs) == 0 {
		return res
	}
	if res.Slots == nil {
		res.Slots = make(map[string]any)
	}

	for _, spec := range specs {
		if res.HasSlot(spec.Name) {
			continue
		}
		if v, ok := Extract(rs.SlotPatterns(spec.Name), spec.Name, originalText); ok {
			res.SetSlot(spec.Name, v)
		}
	}

	if d.provider == nil {
		return res
	}

	var missing []string
	for _, spec := range specs {
		if spec.Required && !res.HasSlot(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) == 0 {
		return res
	}

	d.fillViaLLM(ctx, res, originalText, specs, missing)
	return res
}

// Extract returns the first pattern match for slot: the group named after the
// slot when the pattern has one, otherwise the whole match. A pattern whose
// slot group did not take part in the match is passed over.
func Extract(patterns []rules.Pattern, slot, text string) (string, bool) {
	for _, p := range patterns {
		loc := p.Re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		group := p.Re.SubexpIndex(slot)
		if group < 0 {
			return text[loc[0]:loc[1]], true
		}
		if loc[2*group] < 0 {
			continue
		}
		return text[loc[2*group]:loc[2*group+1]], true
	}
	return "", false
}

type llmResult struct {
	slots map[string]any
	err   error
}

func (r llmResult) GetError() error { return r.err }

func (d *Default) fillViaLLM(ctx context.Context, res *model.IntentResult, text string, specs []rules.SlotSpec, missing []string) {
	allowed := make([]string, len(specs))
	for i, s := range specs {
		allowed[i] = s.Name
	}

	req := llm.SlotRequest{
		Text:         text,
		Intent:       res.Intent,
		CurrentSlots: res.CloneSlots(),
		Missing:      missing,
		Allowed:      allowed,
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	pending := worker.Go(callCtx, worker.JobFunc(func(ctx context.Context) worker.Result {
		slots, err := d.provider.FillMissingSlots(ctx, req)
		return llmResult{slots: slots, err: err}
	}))

	result, err := pending.Await()
	if err != nil {
		d.observe(OutcomeTimeout)
		d.logger.Warn("LLM slot filling timed out, degraded",
			zap.String("intent", res.Intent),
			zap.Duration("timeout", d.timeout))
		return
	}
	if err := result.GetError(); err != nil {
		outcome := OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		d.observe(outcome)
		d.logger.Warn("LLM slot filling failed, degraded",
			zap.String("intent", res.Intent),
			zap.Error(err))
		return
	}

	lr, _ := result.(llmResult)
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}

	filled := 0
	for k, v := range lr.slots {
		if keep[k] && res.SetSlot(k, v) {
			filled++
		}
	}

	if filled == 0 {
		d.observe(OutcomeEmpty)
		return
	}
	d.observe(OutcomeFilled)
	d.logger.Debug("LLM filled slots",
		zap.String("intent", res.Intent),
		zap.Int("filled", filled))
}
