package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ppiankov/intentra/internal/model"
)

// Well-known rule file stems. Any other rule file contributes configuration blocks.
const (
	FileIntents  = "intents"
	FileKeywords = "keywords"
	FilePatterns = "regex_patterns"
)

// SlotSpec declares one slot of an intent
type SlotSpec struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
}

// IntentDef is one entry of the intent catalog
type IntentDef struct {
	Name  string     `json:"name" yaml:"name"`
	Slots []SlotSpec `json:"slots" yaml:"slots"`
}

// Catalog is the decoded intents file
type Catalog struct {
	Intents       []IntentDef `json:"intents" yaml:"intents"`
	UnknownIntent string      `json:"unknown_intent" yaml:"unknown_intent"`
}

// KeywordSpec is the on-disk keyword rule of one intent
type KeywordSpec struct {
	Keywords        []string `json:"keywords" yaml:"keywords"`
	MustKeywords    []string `json:"must_keywords" yaml:"must_keywords"`
	ExcludeKeywords []string `json:"exclude_keywords" yaml:"exclude_keywords"`
	Weight          *float64 `json:"weight" yaml:"weight"`
}

// KeywordRule is a normalised keyword rule. Keyword lists are lower-cased.
type KeywordRule struct {
	Intent          string
	Keywords        []string
	MustKeywords    []string
	ExcludeKeywords []string
	Weight          float64
}

// PatternSpec is one regular expression with its flags ("i" = case-insensitive)
type PatternSpec struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Flags   string `json:"flags" yaml:"flags"`
}

// PatternFile is the decoded regex patterns file
type PatternFile struct {
	Intents model.Ordered[[]PatternSpec] `json:"intents" yaml:"intents"`
	Slots   model.Ordered[[]PatternSpec] `json:"slots" yaml:"slots"`
}

// Pattern is a compiled PatternSpec
type Pattern struct {
	Source string
	Re     *regexp.Regexp
}

// IntentPatterns holds the compiled patterns of one intent
type IntentPatterns struct {
	Intent   string
	Patterns []Pattern
}

// FileStatus reports how one rule file was loaded
type FileStatus struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Entries int    `json:"entries"`
	Skipped int    `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// File is a raw rule file. Err is set when the file could not be read.
type File struct {
	Name string
	Data []byte
	Err  error
}

// RuleSet is one immutable generation of rules. It is safe for concurrent use.
type RuleSet struct {
	Generation uint64
	LoadedAt   time.Time
	Files      []FileStatus

	catalog        Catalog
	intentIndex    map[string]int
	keywords       []KeywordRule
	intentPatterns []IntentPatterns
	slotPatterns   map[string][]Pattern
	blocks         map[string]block
}

type block struct {
	file   string
	decode func(out any) error
}

// UnknownIntent returns the sentinel intent name
func (rs *RuleSet) UnknownIntent() string {
	if rs.catalog.UnknownIntent == "" {
		return model.DefaultUnknownIntent
	}
	return rs.catalog.UnknownIntent
}

// Intents returns the intent catalog in file order
func (rs *RuleSet) Intents() []IntentDef {
	return rs.catalog.Intents
}

// Intent looks up one intent definition
func (rs *RuleSet) Intent(name string) (IntentDef, bool) {
	i, ok := rs.intentIndex[name]
	if !ok {
		return IntentDef{}, false
	}
	return rs.catalog.Intents[i], true
}

// IntentSlots returns the slot specs of an intent, nil if unknown
func (rs *RuleSet) IntentSlots(name string) []SlotSpec {
	def, ok := rs.Intent(name)
	if !ok {
		return nil
	}
	return def.Slots
}

// Keywords returns keyword rules in file order
func (rs *RuleSet) Keywords() []KeywordRule {
	return rs.keywords
}

// IntentPatterns returns the compiled recognition patterns in file order
func (rs *RuleSet) IntentPatterns() []IntentPatterns {
	return rs.intentPatterns
}

// SlotPatterns returns the compiled extraction patterns for a slot
func (rs *RuleSet) SlotPatterns(slot string) []Pattern {
	return rs.slotPatterns[slot]
}

// BlockKeys lists the configuration blocks available
func (rs *RuleSet) BlockKeys() []string {
	keys := make([]string, 0, len(rs.blocks))
	for k := range rs.blocks {
		keys = append(keys, k)
	}
	return keys
}

// Block decodes the configuration block stored under key into out.
// It reports false when no such block exists.
func (rs *RuleSet) Block(key string, out any) (bool, error) {
	b, ok := rs.blocks[key]
	if !ok {
		return false, nil
	}
	if err := b.decode(out); err != nil {
		return true, fmt.Errorf("decode block %q from %s: %w", key, b.file, err)
	}
	return true, nil
}
