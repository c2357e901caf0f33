package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/intentra/internal/engine"
	"github.com/ppiankov/intentra/internal/logging"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session bundles what a command needs to process text
type session struct {
	cfg    *model.Config
	logger *zap.Logger
	store  *rules.Store
	engine *engine.Engine
}

func newLogger(cfg *model.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		Verbose: verbose,
	})
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	store := rules.NewStore(cfg.RulesDir, logger)
	eng, err := engine.FromConfig(cfg, store, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	return &session{cfg: cfg, logger: logger, store: store, engine: eng}, nil
}

func (s *session) Close() {
	s.engine.Close()
	_ = s.logger.Sync()
}

// contextFlags are the conversational context options shared by parse, repl and batch
type contextFlags struct {
	raw          string
	lastIntent   string
	filler       string
	triggerSheet bool
	sheetType    string
	sheetPath    string
	sheetName    string
}

func (f *contextFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.raw, "context", "", `context as a JSON object, e.g. '{"last_intent":"book_flight"}'`)
	cmd.Flags().StringVar(&f.lastIntent, "last-intent", "", "intent of the previous turn")
	cmd.Flags().StringVar(&f.filler, "filler", "", "slot filler to use (default: default_slot_filler)")
	cmd.Flags().BoolVar(&f.triggerSheet, "trigger-sheet", false, "run the spreadsheet recognizer")
	cmd.Flags().StringVar(&f.sheetType, "sheet-type", "", "sheet type from the sheet_analyzer rules block")
	cmd.Flags().StringVar(&f.sheetPath, "sheet-path", "", "workbook path (overrides the configured one)")
	cmd.Flags().StringVar(&f.sheetName, "sheet-name", "", "worksheet name (overrides the configured one)")
}

// build merges the JSON context with the individual flags; flags win
func (f *contextFlags) build() (model.Context, error) {
	rc := model.Context{}
	if f.raw != "" {
		if err := json.Unmarshal([]byte(f.raw), &rc); err != nil {
			return nil, fmt.Errorf("invalid --context: %w", err)
		}
		if rc == nil {
			rc = model.Context{}
		}
	}

	set := func(key, value string) {
		if value != "" {
			rc[key] = value
		}
	}
	set(model.CtxLastIntent, f.lastIntent)
	set(model.CtxSlotFiller, f.filler)
	set(model.CtxSheetType, f.sheetType)
	set(model.CtxSheetPath, f.sheetPath)
	set(model.CtxSheetName, f.sheetName)
	if f.triggerSheet {
		rc[model.CtxTriggerSheet] = true
	}
	return rc, nil
}

func writeJSON(cmd *cobra.Command, v any, pretty bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
