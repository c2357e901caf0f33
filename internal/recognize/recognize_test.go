package recognize

import (
	"context"
	"testing"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticStore(t *testing.T, files map[string]string) *rules.Store {
	t.Helper()
	var fs []rules.File
	for name, data := range files {
		fs = append(fs, rules.File{Name: name, Data: []byte(data)})
	}
	return rules.NewStaticStore(nil, fs...)
}

const testPatterns = `{
  "intents": {
    "book_flight": [
      {"pattern": "预订(?P<destination>.+?)的机票"},
      {"pattern": "fly to (?P<destination>\\w+)(?: on (?P<date>\\S+))?", "flags": "i"}
    ],
    "query_weather": [
      {"pattern": "weather"}
    ],
    "tie_second": [
      {"pattern": "weather"}
    ]
  }
}`

func TestPattern_Confidence(t *testing.T) {
	p := NewPattern(staticStore(t, map[string]string{"regex_patterns.json": testPatterns}))
	assert.Equal(t, "regex", p.Name())

	res, err := p.Parse(context.Background(), "预订北京的机票", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, "regex", res.Source)
	// Whole text matched: 0.9 + 0.1
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, "北京", res.Slots["destination"])

	res, err = p.Parse(context.Background(), "what is the weather like today", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.InDelta(t, 0.9+7.0/30.0*0.1, res.Confidence, 1e-9)
}

func TestPattern_TiesKeepFirstSeen(t *testing.T) {
	p := NewPattern(staticStore(t, map[string]string{"regex_patterns.json": testPatterns}))

	res, err := p.Parse(context.Background(), "weather", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "query_weather", res.Intent)
	assert.Contains(t, res.RawMatches, "query_weather")
	assert.Contains(t, res.RawMatches, "tie_second")
}

func TestPattern_OnlyParticipatingGroupsSeedSlots(t *testing.T) {
	p := NewPattern(staticStore(t, map[string]string{"regex_patterns.json": testPatterns}))

	res, err := p.Parse(context.Background(), "FLY TO Paris", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Paris", res.Slots["destination"])
	assert.NotContains(t, res.Slots, "date")

	res, err = p.Parse(context.Background(), "fly to Paris on 2024-05-01", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", res.Slots["date"])
}

func TestPattern_NoMatch(t *testing.T) {
	p := NewPattern(staticStore(t, map[string]string{"regex_patterns.json": testPatterns}))
	res, err := p.Parse(context.Background(), "hello", nil)
	assert.NoError(t, err)
	assert.Nil(t, res)

	empty := NewPattern(staticStore(t, nil))
	res, err = empty.Parse(context.Background(), "weather", nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestPattern_SeesReload(t *testing.T) {
	store := staticStore(t, map[string]string{"regex_patterns.json": testPatterns})
	p := NewPattern(store)

	res, _ := p.Parse(context.Background(), "weather", nil)
	require.NotNil(t, res)

	store.Replace(rules.File{Name: "regex_patterns.json", Data: []byte(`{"intents": {"greet": [{"pattern": "hello"}]}}`)})

	res, err := p.Parse(context.Background(), "weather", nil)
	require.NoError(t, err)
	assert.Nil(t, res, "old patterns are gone after reload")

	res, err = p.Parse(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "greet", res.Intent)
}

const testKeywords = `{
  "book_flight": {"keywords": ["机票", "航班", "flight", "plane"], "exclude_keywords": ["取消"], "weight": 1.0},
  "cancel_order": {"keywords": ["cancel"], "must_keywords": ["order"], "weight": 0.5},
  "heavy": {"keywords": ["boost"], "weight": 5},
  "twin_a": {"keywords": ["twin"]},
  "twin_b": {"keywords": ["twin"]}
}`

func TestScoreKeywords(t *testing.T) {
	rule := rules.KeywordRule{
		Intent:          "book_flight",
		Keywords:        []string{"机票", "航班", "flight", "plane"},
		ExcludeKeywords: []string{"取消"},
		Weight:          1,
	}
	tests := []struct {
		text string
		want float64
	}{
		{"我要订机票", 0.25},
		{"机票 航班", 0.5},
		{"取消机票", 0},
		{"nothing", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ScoreKeywords(tt.text, rule), 1e-9, tt.text)
	}

	must := rules.KeywordRule{Keywords: []string{"cancel"}, MustKeywords: []string{"order"}, Weight: 1}
	assert.Zero(t, ScoreKeywords("cancel it", must))
	assert.InDelta(t, 0.85, ScoreKeywords("cancel order", must), 1e-9, "capped")

	assert.Zero(t, ScoreKeywords("anything", rules.KeywordRule{Weight: 1}), "no keywords")
}

func TestKeyword_Parse(t *testing.T) {
	k := NewKeyword(staticStore(t, map[string]string{"keywords.json": testKeywords}))
	assert.Equal(t, "keyword", k.Name())

	res, err := k.Parse(context.Background(), "Book a FLIGHT and a plane", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "book_flight", res.Intent)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)

	scores, ok := res.RawMatches["scores"].(map[string]float64)
	require.True(t, ok)
	assert.Len(t, scores, 5)
	assert.Zero(t, scores["cancel_order"])

	res, err = k.Parse(context.Background(), "boost", nil)
	require.NoError(t, err)
	assert.InDelta(t, MaxKeywordConfidence, res.Confidence, 1e-9)

	res, err = k.Parse(context.Background(), "twin", nil)
	require.NoError(t, err)
	assert.Equal(t, "twin_a", res.Intent, "ties keep file order")

	res, err = k.Parse(context.Background(), "unrelated", nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestKeyword_ReloadChangesWeight(t *testing.T) {
	store := staticStore(t, map[string]string{"keywords.json": `{"a": {"keywords": ["x"], "weight": 0.5}}`})
	k := NewKeyword(store)

	res, _ := k.Parse(context.Background(), "x", nil)
	require.NotNil(t, res)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)

	store.Replace(rules.File{Name: "keywords.json", Data: []byte(`{"a": {"keywords": ["x"], "weight": 0.2}}`)})
	res, _ = k.Parse(context.Background(), "x", nil)
	require.NotNil(t, res)
	assert.InDelta(t, 0.2, res.Confidence, 1e-9)
}

func TestContinuation(t *testing.T) {
	c := NewContinuation()
	ctx := context.Background()

	res, err := c.Parse(ctx, "ok", model.Context{"last_intent": "book_flight"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, 0.4, res.Confidence)
	assert.Equal(t, "continuation", res.Source)
	assert.Equal(t, "continue_last_intent", res.Metadata["continuation_reason"])
	assert.Equal(t, "last_intent", res.RawMatches["source"])

	// Nine CJK runes are short even though they are 27 bytes
	res, _ = c.Parse(ctx, "  明天下午三点的那个  ", model.Context{"last_intent": "book_flight"})
	assert.NotNil(t, res)

	res, _ = c.Parse(ctx, "this is a much longer reply", model.Context{"last_intent": "book_flight"})
	assert.Nil(t, res)

	res, _ = c.Parse(ctx, "ok", nil)
	assert.Nil(t, res)
}

func TestFunc(t *testing.T) {
	r := Func("stub", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		return model.NewResult("x", 0.3, "stub"), nil
	})
	assert.Equal(t, "stub", r.Name())
	res, err := r.Parse(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", res.Intent)
}
