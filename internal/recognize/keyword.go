package recognize

import (
	"context"
	"strings"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
)

// MaxKeywordConfidence caps keyword scores below the regex short-circuit
const MaxKeywordConfidence = 0.85

// Keyword scores intents by the share of their keywords found in the text
type Keyword struct {
	store *rules.Store
}

// NewKeyword creates a keyword recognizer over store
func NewKeyword(store *rules.Store) *Keyword {
	return &Keyword{store: store}
}

// Name returns "keyword"
func (k *Keyword) Name() string {
	return model.SourceKeyword
}

// Parse returns the highest scoring intent, or nil when nothing scores above zero
func (k *Keyword) Parse(ctx context.Context, text string, _ model.Context) (*model.IntentResult, error) {
	kw := k.store.At(ctx).Keywords()
	if len(kw) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(kw))

	var bestIntent string
	var bestScore float64
	for _, rule := range kw {
		score := ScoreKeywords(lower, rule)
		scores[rule.Intent] = score
		if score > bestScore {
			bestScore = score
			bestIntent = rule.Intent
		}
	}

	if bestIntent == "" {
		return nil, nil
	}

	res := model.NewResult(bestIntent, bestScore, model.SourceKeyword)
	res.RawMatches["scores"] = scores
	return res, nil
}

// ScoreKeywords scores lowered text against one rule. Any exclude hit or
// missing must-keyword scores 0.
func ScoreKeywords(lower string, rule rules.KeywordRule) float64 {
	for _, kw := range rule.ExcludeKeywords {
		if strings.Contains(lower, kw) {
			return 0
		}
	}
	for _, kw := range rule.MustKeywords {
		if !strings.Contains(lower, kw) {
			return 0
		}
	}
	if len(rule.Keywords) == 0 {
		return 0
	}

	hits := 0
	for _, kw := range rule.Keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	return min(float64(hits)/float64(len(rule.Keywords))*rule.Weight, MaxKeywordConfidence)
}
