// Package engine runs recognizers in parallel, fuses their answers and fills slots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/recognize"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/ppiankov/intentra/internal/slots"
	"github.com/ppiankov/intentra/internal/textproc"
	"github.com/ppiankov/intentra/internal/worker"
	"go.uber.org/zap"
)

// DefaultRecognizerTimeout bounds each recognizer call unless overridden
const DefaultRecognizerTimeout = 500 * time.Millisecond

// Engine is safe for concurrent use. Close releases the worker pool.
type Engine struct {
	store       *rules.Store
	recognizers []recognize.Recognizer
	fillers     *slots.Registry
	pre         textproc.Preprocessor
	pool        *worker.Pool
	timeout     time.Duration
	timeouts    map[string]time.Duration
	logger      *zap.Logger
	closeOnce   sync.Once
}

type settings struct {
	recognizers    []recognize.Recognizer
	recognizersSet bool
	fillers        []slots.SlotFiller
	fillersSet     bool
	pre            textproc.Preprocessor
	timeout        time.Duration
	timeouts       map[string]time.Duration
	workers        int
	logger         *zap.Logger
}

// Option configures an Engine
type Option func(*settings)

// WithRecognizers replaces the default recognizers. Order is the tie-break order of fusion.
func WithRecognizers(rs ...recognize.Recognizer) Option {
	return func(s *settings) {
		s.recognizers = rs
		s.recognizersSet = true
	}
}

// WithFillers replaces the default slot fillers. The first one is the default.
func WithFillers(fs ...slots.SlotFiller) Option {
	return func(s *settings) {
		s.fillers = fs
		s.fillersSet = true
	}
}

// WithPreprocessor sets the text preprocessor
func WithPreprocessor(p textproc.Preprocessor) Option {
	return func(s *settings) {
		s.pre = p
	}
}

// WithTimeout sets the shared per-recognizer deadline
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRecognizerTimeout overrides the deadline of one recognizer
func WithRecognizerTimeout(name string, d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeouts[name] = d
		}
	}
}

// WithWorkers sets the pool size. 0 sizes the pool to the recognizer count.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultRecognizers returns pattern, keyword and continuation recognizers reading store
func DefaultRecognizers(store *rules.Store) []recognize.Recognizer {
	return []recognize.Recognizer{
		recognize.NewPattern(store),
		recognize.NewKeyword(store),
		recognize.NewContinuation(),
	}
}

// New builds an engine and starts its worker pool
func New(store *rules.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine needs a rule store")
	}

	s := settings{
		timeout:  DefaultRecognizerTimeout,
		timeouts: make(map[string]time.Duration),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	logger := s.logger.Named("engine")

	if !s.recognizersSet {
		s.recognizers = DefaultRecognizers(store)
	}
	seen := make(map[string]bool, len(s.recognizers))
	for _, r := range s.recognizers {
		if r == nil || r.Name() == "" {
			return nil, fmt.Errorf("recognizer must have a name")
		}
		if seen[r.Name()] {
			return nil, fmt.Errorf("recognizer %q registered twice", r.Name())
		}
		seen[r.Name()] = true
	}

	if !s.fillersSet {
		s.fillers = []slots.SlotFiller{
			slots.NewDefault(store, slots.WithLogger(s.logger), slots.WithObserver(ObserveSlotLLM)),
			slots.NewAnomaly(s.logger),
		}
	}
	registry, err := slots.NewRegistry(s.fillers...)
	if err != nil {
		return nil, fmt.Errorf("register slot fillers: %w", err)
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("engine needs at least one slot filler")
	}

	workers := s.workers
	if workers <= 0 {
		workers = len(s.recognizers)
	}
	pool := worker.NewPool(workers)
	pool.Start()

	logger.Debug("Engine ready",
		zap.Strings("recognizers", recognizerNames(s.recognizers)),
		zap.Strings("fillers", registry.Names()),
		zap.Int("workers", pool.Workers()),
		zap.Duration("timeout", s.timeout))

	return &Engine{
		store:       store,
		recognizers: s.recognizers,
		fillers:     registry,
		pre:         s.pre,
		pool:        pool,
		timeout:     s.timeout,
		timeouts:    s.timeouts,
		logger:      logger,
	}, nil
}

// Recognizers lists recognizer names in dispatch order
func (e *Engine) Recognizers() []string {
	return recognizerNames(e.recognizers)
}

// Fillers lists slot filler names, default first
func (e *Engine) Fillers() []string {
	return e.fillers.Names()
}

// Store returns the rule store the engine reads
func (e *Engine) Store() *rules.Store {
	return e.store
}

// Reload re-reads the rules. Calls already in flight finish on the old rules.
func (e *Engine) Reload() {
	e.store.Reload()
}

// Close stops the worker pool. Process must not be called afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(e.pool.Close)
}

// Process classifies text and fills slots. It always returns a well-formed
// result: recognizer failures and timeouts only remove candidates.
func (e *Engine) Process(ctx context.Context, text string, rc model.Context) *model.IntentResult {
	start := time.Now()
	defer func() {
		processDuration.Observe(time.Since(start).Seconds())
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if rc == nil {
		rc = model.Context{}
	}
	ctx, rs := e.store.Pin(ctx)
	requestID := uuid.NewString()
	logger := e.logger.With(zap.String("request_id", requestID))

	processed := e.preprocess(ctx, text, rc, logger)

	candidates := e.dispatch(ctx, processed, rc, logger)
	fused := Fuse(candidates, rs.UnknownIntent())
	fusionTotal.WithLabelValues(fusionLabel(fused)).Inc()
	fused.SetMetadataDefault(model.MetaRequestID, requestID)

	logger.Debug("Fused",
		zap.String("intent", fused.Intent),
		zap.Float64("confidence", fused.Confidence),
		zap.String("source", fused.Source),
		zap.Int("candidates", len(candidates)))

	return e.fill(ctx, fused, text, rc, logger)
}

func (e *Engine) preprocess(ctx context.Context, text string, rc model.Context, logger *zap.Logger) (out string) {
	if e.pre == nil {
		return strings.TrimSpace(text)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Preprocessor panicked, using raw text", zap.Any("panic", r))
			out = text
		}
	}()

	processed, err := e.pre.Preprocess(ctx, text, rc)
	if err != nil {
		logger.Warn("Preprocess failed, using raw text", zap.Error(err))
		return text
	}
	return processed
}

type parseResult struct {
	res *model.IntentResult
	err error
}

func (r parseResult) GetError() error { return r.err }

func (e *Engine) timeoutFor(name string) time.Duration {
	if d, ok := e.timeouts[name]; ok {
		return d
	}
	return e.timeout
}

// dispatch fans out every recognizer and collects the survivors in
// registration order
func (e *Engine) dispatch(ctx context.Context, text string, rc model.Context, logger *zap.Logger) []*model.IntentResult {
	type call struct {
		name    string
		timeout time.Duration
		pending *worker.Pending
		cancel  context.CancelFunc
	}

	calls := make([]call, len(e.recognizers))
	for i, r := range e.recognizers {
		r := r
		timeout := e.timeoutFor(r.Name())
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		pending := e.pool.Submit(callCtx, worker.JobFunc(func(ctx context.Context) worker.Result {
			res, err := r.Parse(ctx, text, rc)
			return parseResult{res: res, err: err}
		}))
		calls[i] = call{name: r.Name(), timeout: timeout, pending: pending, cancel: cancel}
	}

	var out []*model.IntentResult
	for _, c := range calls {
		result, err := c.pending.Await()
		c.cancel()

		if errors.Is(err, worker.ErrPoolClosed) {
			recognizerOutcomes.WithLabelValues(c.name, OutcomeError).Inc()
			logger.Warn("Recognizer not run, engine closed", zap.String("recognizer", c.name))
			continue
		}
		if err != nil {
			recognizerOutcomes.WithLabelValues(c.name, OutcomeTimeout).Inc()
			logger.Warn("Recognizer timed out, degraded",
				zap.String("recognizer", c.name),
				zap.Duration("timeout", c.timeout),
				zap.Error(err))
			continue
		}
		if err := result.GetError(); err != nil {
			recognizerOutcomes.WithLabelValues(c.name, OutcomeError).Inc()
			logger.Warn("Recognizer failed, degraded",
				zap.String("recognizer", c.name),
				zap.Error(err))
			continue
		}

		pr, _ := result.(parseResult)
		if pr.res == nil {
			recognizerOutcomes.WithLabelValues(c.name, OutcomeMiss).Inc()
			continue
		}
		recognizerOutcomes.WithLabelValues(c.name, OutcomeHit).Inc()
		pr.res.Confidence = model.ClampConfidence(pr.res.Confidence)
		out = append(out, pr.res)
	}
	return out
}

// fill runs the filler named in the context, or the default one
func (e *Engine) fill(ctx context.Context, res *model.IntentResult, original string, rc model.Context, logger *zap.Logger) (out *model.IntentResult) {
	name := rc.SlotFiller()
	filler, ok := e.fillers.Resolve(name)
	switch {
	case ok:
	case name == "":
		logger.Debug("No slot filler requested, using default", zap.String("default", filler.Name()))
	default:
		fields := []zap.Field{
			zap.String("filler", name),
			zap.String("default", filler.Name()),
		}
		if suggestion := e.fillers.Suggest(name); suggestion != "" {
			fields = append(fields, zap.String("did_you_mean", suggestion))
		}
		logger.Warn("Unknown slot filler, using default", fields...)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Slot filler panicked, returning fused result",
				zap.String("filler", filler.Name()),
				zap.Any("panic", r))
			out = res
		}
	}()

	filled := filler.FillSlots(ctx, res, original, rc)
	if filled == nil {
		return res
	}
	return filled
}

func recognizerNames(rs []recognize.Recognizer) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name()
	}
	return names
}
