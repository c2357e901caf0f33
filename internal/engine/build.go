package engine

import (
	"fmt"

	"github.com/ppiankov/intentra/internal/cache"
	"github.com/ppiankov/intentra/internal/llm"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/recognize"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/ppiankov/intentra/internal/slots"
	"github.com/ppiankov/intentra/internal/textproc"
	"go.uber.org/zap"
)

// FromConfig wires an engine from the runtime configuration: preprocessing
// chain, optional sheet recognizer with its cache, and the LLM fallback of
// the default slot filler.
func FromConfig(cfg *model.Config, store *rules.Store, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chain, err := textproc.NewChain(cfg.Preprocess.Steps...)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	fillerOpts := []slots.DefaultOption{
		slots.WithLogger(logger),
		slots.WithObserver(ObserveSlotLLM),
	}
	if provider != nil {
		fillerOpts = append(fillerOpts, slots.WithProvider(provider, cfg.Slots.LLMTimeout))
		logger.Info("LLM slot fallback enabled",
			zap.String("provider", provider.Name()),
			zap.Duration("timeout", cfg.Slots.LLMTimeout))
	}

	recognizers := DefaultRecognizers(store)
	if cfg.Sheet.Enabled {
		recognizers = append(recognizers, recognize.NewSheet(store,
			recognize.WithSheetCache(sheetCache(cfg.Sheet), cfg.Sheet.CacheTTL),
			recognize.WithSheetLogger(logger)))
	}

	opts := []Option{
		WithRecognizers(recognizers...),
		WithFillers(
			slots.NewDefault(store, fillerOpts...),
			slots.NewAnomaly(logger),
		),
		WithTimeout(cfg.Engine.RecognizerTimeout),
		WithWorkers(cfg.Engine.Workers),
		WithLogger(logger),
	}
	if len(chain.Steps()) > 0 {
		opts = append(opts, WithPreprocessor(chain))
	}
	for name, d := range cfg.Engine.RecognizerTimeouts {
		opts = append(opts, WithRecognizerTimeout(name, d))
	}

	return New(store, opts...)
}

// sheetCache keeps parsed batches in memory, and on disk when a cache
// directory is configured. Expired memory entries are dropped on read.
func sheetCache(cfg model.SheetConfig) cache.Cache[[]model.SegmentRecord] {
	if cfg.CacheDir == "" {
		return cache.NewMemory[[]model.SegmentRecord](cfg.CacheTTL, 0)
	}
	return cache.NewLayered[[]model.SegmentRecord](cfg.CacheTTL, 0, cfg.CacheDir, cfg.CacheTTL)
}
