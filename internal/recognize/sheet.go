package recognize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ppiankov/intentra/internal/cache"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/ppiankov/intentra/internal/sheet"
	"go.uber.org/zap"
)

const (
	// NameSheet is the recognizer name of the spreadsheet source
	NameSheet = "sheet"

	// IntentSheetAnalysis is the intent produced for a parsed sheet
	IntentSheetAnalysis = "sheet_interruption_analysis"

	// SheetBlock is the configuration block key in the rules directory
	SheetBlock = "sheet_analyzer"

	defaultDurationThreshold = 15.0
)

// SheetSource locates the workbook of one sheet type
type SheetSource struct {
	Path  string `json:"path" yaml:"path"`
	Sheet string `json:"sheet" yaml:"sheet"`
}

// SheetConfig is the sheet_analyzer configuration block
type SheetConfig struct {
	DurationThreshold    *float64               `json:"duration_threshold" yaml:"duration_threshold"`
	IgnoreNoInterruption *bool                  `json:"ignore_no_interruption" yaml:"ignore_no_interruption"`
	DefaultType          string                 `json:"default_type" yaml:"default_type"`
	SegmentPattern       string                 `json:"segment_pattern" yaml:"segment_pattern"`
	Columns              sheet.Columns          `json:"columns" yaml:"columns"`
	Types                map[string]SheetSource `json:"types" yaml:"types"`
}

func (c SheetConfig) threshold() float64 {
	if c.DurationThreshold == nil {
		return defaultDurationThreshold
	}
	return *c.DurationThreshold
}

func (c SheetConfig) ignoreNoInterruption() bool {
	if c.IgnoreNoInterruption == nil {
		return true
	}
	return *c.IgnoreNoInterruption
}

func (c SheetConfig) defaultType() string {
	if c.DefaultType == "" {
		return sheet.TypeMerged
	}
	return c.DefaultType
}

func (c SheetConfig) segmentPattern() string {
	if c.SegmentPattern == "" {
		return sheet.DefaultSegmentPattern
	}
	return c.SegmentPattern
}

// Sheet is an on-demand recognizer: it only runs when the caller sets
// trigger_sheet in the context, and then reports the parsed record batch.
type Sheet struct {
	store  *rules.Store
	cache  cache.Cache[[]model.SegmentRecord]
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	cfgGen uint64
	cfg    SheetConfig
}

// SheetOption configures a Sheet recognizer
type SheetOption func(*Sheet)

// WithSheetCache caches parsed batches; entries live for ttl (0 = cache default)
func WithSheetCache(c cache.Cache[[]model.SegmentRecord], ttl time.Duration) SheetOption {
	return func(s *Sheet) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithSheetLogger sets the logger
func WithSheetLogger(l *zap.Logger) SheetOption {
	return func(s *Sheet) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSheet creates the spreadsheet recognizer
func NewSheet(store *rules.Store, opts ...SheetOption) *Sheet {
	s := &Sheet{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("recognize.sheet")
	return s
}

// Name returns "sheet"
func (s *Sheet) Name() string {
	return NameSheet
}

// config decodes the block once per rule generation
func (s *Sheet) config(ctx context.Context) SheetConfig {
	rs := s.store.At(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfgGen == rs.Generation && s.cfgGen != 0 {
		return s.cfg
	}

	var cfg SheetConfig
	if _, err := rs.Block(SheetBlock, &cfg); err != nil {
		s.logger.Warn("Invalid sheet configuration, using defaults", zap.Error(err))
		cfg = SheetConfig{}
	}
	s.cfg = cfg
	s.cfgGen = rs.Generation
	return cfg
}

// Parse reads the configured sheet when triggered. Missing configuration
// yields no result; read failures are returned as errors.
func (s *Sheet) Parse(ctx context.Context, _ string, rc model.Context) (*model.IntentResult, error) {
	if !rc.Bool(model.CtxTriggerSheet) {
		return nil, nil
	}

	cfg := s.config(ctx)
	sheetType := rc.String(model.CtxSheetType)
	if sheetType == "" {
		sheetType = cfg.defaultType()
	}
	src, ok := cfg.Types[sheetType]
	if !ok {
		s.logger.Debug("Unknown sheet type", zap.String("type", sheetType))
		return nil, nil
	}

	path := rc.String(model.CtxSheetPath)
	if path == "" {
		path = src.Path
	}
	sheetName := rc.String(model.CtxSheetName)
	if sheetName == "" {
		sheetName = src.Sheet
	}
	if path == "" || sheetName == "" {
		return nil, nil
	}

	segmentPattern := rc.String(model.CtxSegmentPattern)
	if segmentPattern == "" {
		segmentPattern = cfg.segmentPattern()
	}
	opts := sheet.Options{
		Type:                 sheetType,
		DurationThreshold:    rc.Float(model.CtxDurationThreshold, cfg.threshold()),
		IgnoreNoInterruption: rc.BoolDefault(model.CtxIgnoreNoInterruption, cfg.ignoreNoInterruption()),
		SegmentPattern:       segmentPattern,
		Columns:              cfg.Columns,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, cached, err := s.load(path, sheetName, opts)
	if err != nil {
		return nil, err
	}

	res := model.NewResult(IntentSheetAnalysis, 1.0, NameSheet)
	res.Metadata["sheet_path"] = path
	res.Metadata["sheet_name"] = sheetName
	res.Metadata["sheet_type"] = sheetType
	res.Metadata["duration_threshold"] = opts.DurationThreshold
	res.Metadata["ignore_no_interruption"] = opts.IgnoreNoInterruption
	res.Metadata["result_count"] = len(records)
	res.Metadata["cached"] = cached
	res.Metadata[model.MetaRecords] = records
	return res, nil
}

func (s *Sheet) load(path, sheetName string, opts sheet.Options) ([]model.SegmentRecord, bool, error) {
	if s.cache == nil {
		records, err := sheet.Read(path, sheetName, opts)
		return records, false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat workbook: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := cache.Key(
		abs,
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10),
		sheetName,
		opts.Type,
		strconv.FormatFloat(opts.DurationThreshold, 'g', -1, 64),
		strconv.FormatBool(opts.IgnoreNoInterruption),
		opts.SegmentPattern,
		fmt.Sprintf("%+v", opts.Columns),
	)

	if records, ok := s.cache.Get(key); ok {
		return records, true, nil
	}

	records, err := sheet.Read(path, sheetName, opts)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(key, records, s.ttl); err != nil {
		s.logger.Warn("Failed to cache parsed sheet", zap.String("path", path), zap.Error(err))
	}
	return records, false, nil
}
