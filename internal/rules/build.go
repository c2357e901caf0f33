package rules

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/intentra/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// IsRuleFile reports whether name has a supported rule file extension
func IsRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func decodeFile(f File, out any) error {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".json":
		return json.Unmarshal(f.Data, out)
	case ".yaml", ".yml":
		return yaml.Unmarshal(f.Data, out)
	default:
		return fmt.Errorf("unsupported rule file type: %s", f.Name)
	}
}

// Build turns raw rule files into a RuleSet. It never fails: problems with a
// file or a single pattern are logged, recorded in Files and skipped.
func Build(logger *zap.Logger, files ...File) *RuleSet {
	if logger == nil {
		logger = zap.NewNop()
	}

	rs := &RuleSet{
		LoadedAt:     time.Now(),
		intentIndex:  make(map[string]int),
		slotPatterns: make(map[string][]Pattern),
		blocks:       make(map[string]block),
	}

	sorted := append([]File(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	seen := make(map[string]bool)
	for _, f := range sorted {
		kind := stem(f.Name)
		status := FileStatus{Name: f.Name, Kind: kind}

		var err error
		switch kind {
		case FileIntents, FileKeywords, FilePatterns:
			if f.Err != nil {
				err = f.Err
				break
			}
			if seen[kind] {
				err = fmt.Errorf("duplicate %s rule file, already loaded from another extension", kind)
				break
			}
			seen[kind] = true
			switch kind {
			case FileIntents:
				err = rs.loadCatalog(f, &status)
			case FileKeywords:
				err = rs.loadKeywords(logger, f, &status)
			case FilePatterns:
				err = rs.loadPatterns(logger, f, &status)
			}
		default:
			status.Kind = "block"
			if f.Err != nil {
				err = f.Err
				break
			}
			err = rs.loadBlocks(logger, f, &status)
		}

		if err != nil {
			status.Error = err.Error()
			logger.Warn("Rule file skipped",
				zap.String("file", f.Name),
				zap.Error(err))
		}
		rs.Files = append(rs.Files, status)
	}

	for _, kind := range []string{FileIntents, FileKeywords, FilePatterns} {
		if !seen[kind] {
			logger.Warn("Rule file not found, using empty rules", zap.String("kind", kind))
		}
	}

	return rs
}

func (rs *RuleSet) loadCatalog(f File, status *FileStatus) error {
	var catalog Catalog
	if err := decodeFile(f, &catalog); err != nil {
		return fmt.Errorf("parse intents: %w", err)
	}

	for _, def := range catalog.Intents {
		if def.Name == "" {
			status.Skipped++
			continue
		}
		if _, dup := rs.intentIndex[def.Name]; dup {
			status.Skipped++
			continue
		}
		slots := make([]SlotSpec, 0, len(def.Slots))
		for _, s := range def.Slots {
			if s.Name != "" {
				slots = append(slots, s)
			}
		}
		def.Slots = slots
		rs.intentIndex[def.Name] = len(rs.catalog.Intents)
		rs.catalog.Intents = append(rs.catalog.Intents, def)
	}
	rs.catalog.UnknownIntent = catalog.UnknownIntent
	status.Entries = len(rs.catalog.Intents)
	return nil
}

func (rs *RuleSet) loadKeywords(logger *zap.Logger, f File, status *FileStatus) error {
	var specs model.Ordered[KeywordSpec]
	if err := decodeFile(f, &specs); err != nil {
		return fmt.Errorf("parse keywords: %w", err)
	}

	for _, e := range specs {
		weight := 1.0
		if e.Value.Weight != nil {
			weight = *e.Value.Weight
		}
		if weight < 0 {
			logger.Warn("Negative keyword weight clamped to 0",
				zap.String("intent", e.Key),
				zap.Float64("weight", weight))
			weight = 0
		}
		rs.keywords = append(rs.keywords, KeywordRule{
			Intent:          e.Key,
			Keywords:        lowerAll(e.Value.Keywords),
			MustKeywords:    lowerAll(e.Value.MustKeywords),
			ExcludeKeywords: lowerAll(e.Value.ExcludeKeywords),
			Weight:          weight,
		})
	}
	status.Entries = len(rs.keywords)
	return nil
}

func (rs *RuleSet) loadPatterns(logger *zap.Logger, f File, status *FileStatus) error {
	var file PatternFile
	if err := decodeFile(f, &file); err != nil {
		return fmt.Errorf("parse regex patterns: %w", err)
	}

	for _, e := range file.Intents {
		compiled, skipped := compileAll(logger, "intent", e.Key, e.Value)
		status.Skipped += skipped
		status.Entries += len(compiled)
		rs.intentPatterns = append(rs.intentPatterns, IntentPatterns{Intent: e.Key, Patterns: compiled})
	}
	for _, e := range file.Slots {
		compiled, skipped := compileAll(logger, "slot", e.Key, e.Value)
		status.Skipped += skipped
		status.Entries += len(compiled)
		rs.slotPatterns[e.Key] = compiled
	}
	return nil
}

func (rs *RuleSet) loadBlocks(logger *zap.Logger, f File, status *FileStatus) error {
	add := func(key string, decode func(any) error) {
		if existing, dup := rs.blocks[key]; dup {
			logger.Warn("Configuration block already defined, keeping first",
				zap.String("block", key),
				zap.String("file", f.Name),
				zap.String("kept_from", existing.file))
			status.Skipped++
			return
		}
		rs.blocks[key] = block{file: f.Name, decode: decode}
		status.Entries++
	}

	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".json":
		var top model.Ordered[json.RawMessage]
		if err := json.Unmarshal(f.Data, &top); err != nil {
			return fmt.Errorf("parse blocks: %w", err)
		}
		for _, e := range top {
			raw := e.Value
			add(e.Key, func(out any) error { return json.Unmarshal(raw, out) })
		}
	default:
		var top model.Ordered[yaml.Node]
		if err := yaml.Unmarshal(f.Data, &top); err != nil {
			return fmt.Errorf("parse blocks: %w", err)
		}
		for _, e := range top {
			node := e.Value
			add(e.Key, func(out any) error { return node.Decode(out) })
		}
	}
	return nil
}

// compileAll compiles specs in order, skipping empty or invalid patterns
func compileAll(logger *zap.Logger, kind, owner string, specs []PatternSpec) ([]Pattern, int) {
	compiled := make([]Pattern, 0, len(specs))
	skipped := 0
	for _, spec := range specs {
		if spec.Pattern == "" {
			skipped++
			continue
		}
		re, err := Compile(spec)
		if err != nil {
			skipped++
			logger.Warn("Invalid pattern skipped",
				zap.String("kind", kind),
				zap.String("owner", owner),
				zap.String("pattern", spec.Pattern),
				zap.Error(err))
			continue
		}
		compiled = append(compiled, Pattern{Source: spec.Pattern, Re: re})
	}
	return compiled, skipped
}

// Compile compiles a PatternSpec honouring its flags
func Compile(spec PatternSpec) (*regexp.Regexp, error) {
	expr := spec.Pattern
	if strings.Contains(strings.ToLower(spec.Flags), "i") {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
