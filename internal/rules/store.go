package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoRulesDir is reported when the rules directory does not exist
var ErrNoRulesDir = errors.New("rules directory not found")

// maxParallelReads bounds concurrent file reads during a load
const maxParallelReads = 4

// Store owns the current RuleSet and replaces it wholesale on reload.
// A request pins one generation with Pin and its readers resolve it with At;
// a concurrent Reload never mutates a RuleSet in place.
type Store struct {
	dir        string
	static     []File
	logger     *zap.Logger
	current    atomic.Pointer[RuleSet]
	generation atomic.Uint64
	reloadMu   sync.Mutex
}

// NewStore loads dir and returns a ready store. Load problems are logged and
// result in empty rules, never in an error.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{dir: dir, logger: logger.Named("rules")}
	s.Reload()
	return s
}

// NewStaticStore wraps prebuilt files; Reload rebuilds from the same files
func NewStaticStore(logger *zap.Logger, files ...File) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{static: files, logger: logger.Named("rules")}
	s.Reload()
	return s
}

// Dir returns the directory rules are loaded from ("" for static stores)
func (s *Store) Dir() string {
	return s.dir
}

// Current returns the active generation
func (s *Store) Current() *RuleSet {
	return s.current.Load()
}

type pinKey struct{ store *Store }

// Pin attaches the current generation to ctx so that every reader of the
// request sees the same rules. A ctx already pinned to s is returned as is.
func (s *Store) Pin(ctx context.Context) (context.Context, *RuleSet) {
	if rs, ok := ctx.Value(pinKey{s}).(*RuleSet); ok {
		return ctx, rs
	}
	rs := s.Current()
	return context.WithValue(ctx, pinKey{s}, rs), rs
}

// At returns the generation pinned in ctx, or the current one
func (s *Store) At(ctx context.Context) *RuleSet {
	if ctx != nil {
		if rs, ok := ctx.Value(pinKey{s}).(*RuleSet); ok {
			return rs
		}
	}
	return s.Current()
}

// Reload re-reads the rules directory and atomically installs the result
func (s *Store) Reload() *RuleSet {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.dir == "" {
		return s.swap(Build(s.logger, s.static...))
	}

	files, err := ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("Rules directory read with errors, unreadable files yield empty rules",
			zap.String("dir", s.dir),
			zap.Error(err))
	}

	rs := s.swap(Build(s.logger, files...))
	s.logger.Info("Rules loaded",
		zap.String("dir", s.dir),
		zap.Uint64("generation", rs.Generation),
		zap.Int("files", len(rs.Files)),
		zap.Int("intents", len(rs.Intents())),
		zap.Int("keyword_rules", len(rs.Keywords())),
		zap.Int("pattern_intents", len(rs.IntentPatterns())))
	return rs
}

// Replace installs files as the next generation of a static store
func (s *Store) Replace(files ...File) *RuleSet {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.static = files
	return s.swap(Build(s.logger, files...))
}

func (s *Store) swap(rs *RuleSet) *RuleSet {
	rs.Generation = s.generation.Add(1)
	s.current.Store(rs)
	return rs
}

// ReadDir reads every rule file in dir concurrently. Unreadable files are
// returned with Err set so the builder records them as failures; the joined
// read errors are returned alongside.
func ReadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoRulesDir, dir)
		}
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsRuleFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]File, len(names))
	var g errgroup.Group
	g.SetLimit(maxParallelReads)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				err = fmt.Errorf("read %s: %w", name, err)
			}
			files[i] = File{Name: name, Data: data, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, f := range files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return files, errors.Join(errs...)
}
