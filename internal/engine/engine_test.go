package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/intentra/internal/llm"
	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/recognize"
	"github.com/ppiankov/intentra/internal/rules"
	"github.com/ppiankov/intentra/internal/slots"
	"github.com/ppiankov/intentra/internal/textproc"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const intentsJSON = `{
  "intents": [
    {"name": "book_flight", "slots": [
      {"name": "destination", "required": true},
      {"name": "date", "required": true}
    ]},
    {"name": "query_weather", "slots": [{"name": "city"}]}
  ],
  "unknown_intent": "unknown_intent"
}`

const keywordsJSON = `{
  "query_weather": {"keywords": ["weather", "天气"], "weight": 1.0},
  "book_flight": {"keywords": ["flight"], "weight": 0.9}
}`

const patternsJSON = `{
  "intents": {
    "book_flight": [
      {"pattern": "预订(?P<destination>.+?)的机票"},
      {"pattern": "book a flight to (?P<destination>\\w+)", "flags": "i"}
    ]
  },
  "slots": {
    "destination": [{"pattern": "去(?P<destination>\\p{Han}+)"}],
    "date": [{"pattern": "\\d{4}-\\d{2}-\\d{2}"}]
  }
}`

func rulesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range map[string]string{
		"intents.json":        intentsJSON,
		"keywords.json":       keywordsJSON,
		"regex_patterns.json": patternsJSON,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	return dir
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(rules.NewStore(rulesDir(t), nil), opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func sleeper(name string, d time.Duration) recognize.Recognizer {
	return recognize.Func(name, func(ctx context.Context, _ string, _ model.Context) (*model.IntentResult, error) {
		select {
		case <-time.After(d):
			return model.NewResult("slow_intent", 1.0, name), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestProcess_UnknownSentinel(t *testing.T) {
	e := newEngine(t)

	for _, text := range []string{"completely unrelated words here", "", "   "} {
		res := e.Process(context.Background(), text, model.Context{})
		require.NotNil(t, res)
		assert.Equal(t, "unknown_intent", res.Intent, text)
		assert.Zero(t, res.Confidence)
		assert.Equal(t, model.SourceSystem, res.Source)
		assert.Equal(t, model.ReasonNoValidResult, res.Metadata[model.MetaReason])
		assert.NotEmpty(t, res.Metadata[model.MetaRequestID])
	}
}

func TestProcess_NilContext(t *testing.T) {
	e := newEngine(t)
	res := e.Process(context.Background(), "预订北京的机票", nil)
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, "北京", res.Slots["destination"])
}

func TestProcess_ConfidenceRanges(t *testing.T) {
	e := newEngine(t)

	for _, text := range []string{"预订上海的机票", "book a flight to Rome", "Book A Flight To Oslo tomorrow please"} {
		res := e.Process(context.Background(), text, nil)
		require.Equal(t, model.SourcePattern, res.Source, text)
		assert.GreaterOrEqual(t, res.Confidence, 0.9)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	}

	for _, text := range []string{"weather", "天气 weather", "what is the weather"} {
		res := e.Process(context.Background(), text, nil)
		require.Equal(t, model.SourceKeyword, res.Source, text)
		assert.Greater(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, recognize.MaxKeywordConfidence)
	}
}

func TestProcess_RegexShortCircuit(t *testing.T) {
	confident := recognize.Func("oracle", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		return model.NewResult("oracle_intent", 1.0, "oracle"), nil
	})
	store := rules.NewStore(rulesDir(t), nil)
	e, err := New(store, WithRecognizers(confident, recognize.NewPattern(store)))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	res := e.Process(context.Background(), "book a flight to Paris on Friday", nil)
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, model.SourcePattern, res.Source)
	assert.Less(t, res.Confidence, 1.0)
	assert.Equal(t, model.FusionRegexOverThreshold, res.Metadata[model.MetaFusionReason])

	res = e.Process(context.Background(), "no regex here", nil)
	assert.Equal(t, "oracle_intent", res.Intent)
	assert.Equal(t, model.FusionMaxConfidence, res.Metadata[model.MetaFusionReason])
}

func TestProcess_Continuation(t *testing.T) {
	e := newEngine(t)

	res := e.Process(context.Background(), "ok", model.Context{"last_intent": "book_flight"})
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, model.SourceContinuation, res.Source)
	assert.Equal(t, 0.4, res.Confidence)
	assert.Equal(t, "continue_last_intent", res.Metadata[model.MetaContinuationReason])
}

func TestProcess_FailingRecognizersDegrade(t *testing.T) {
	failing := recognize.Func("boom", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		return nil, errors.New("boom")
	})
	panicking := recognize.Func("panic", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		panic("recognizer exploded")
	})
	store := rules.NewStore(rulesDir(t), nil)
	recognizers := append(DefaultRecognizers(store), failing, panicking)
	e, err := New(store, WithRecognizers(recognizers...), WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	errorsBefore := testutil.ToFloat64(recognizerOutcomes.WithLabelValues("boom", OutcomeError))

	start := time.Now()
	var res *model.IntentResult
	require.NotPanics(t, func() {
		res = e.Process(context.Background(), "weather", nil)
	})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "query_weather", res.Intent)

	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(recognizerOutcomes.WithLabelValues("boom", OutcomeError)))
}

func TestProcess_SlowRecognizerExcluded(t *testing.T) {
	timeout := 100 * time.Millisecond
	store := rules.NewStore(rulesDir(t), nil)
	recognizers := append(DefaultRecognizers(store), sleeper("slow", 5*time.Second))
	e, err := New(store, WithRecognizers(recognizers...), WithTimeout(timeout))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	timeoutsBefore := testutil.ToFloat64(recognizerOutcomes.WithLabelValues("slow", OutcomeTimeout))

	start := time.Now()
	res := e.Process(context.Background(), "weather", nil)
	elapsed := time.Since(start)

	assert.Equal(t, "query_weather", res.Intent, "the slow recognizer's confidence 1.0 never joins fusion")
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, timeoutsBefore+1, testutil.ToFloat64(recognizerOutcomes.WithLabelValues("slow", OutcomeTimeout)))
}

func TestProcess_UncooperativeRecognizerAbandoned(t *testing.T) {
	release := make(chan struct{})
	stubborn := recognize.Func("stubborn", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		<-release
		return model.NewResult("late", 1.0, "stubborn"), nil
	})

	store := rules.NewStore(rulesDir(t), nil)
	e, err := New(store, WithRecognizers(recognize.NewKeyword(store), stubborn), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	t.Cleanup(func() { close(release) })

	start := time.Now()
	res := e.Process(context.Background(), "weather", nil)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "query_weather", res.Intent)
}

func TestProcess_ContextIgnoringRecognizerDoesNotStarvePool(t *testing.T) {
	sleepy := recognize.Func("sleepy", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		time.Sleep(400 * time.Millisecond)
		return model.NewResult("sleepy_intent", 1.0, "sleepy"), nil
	})

	store := rules.NewStore(rulesDir(t), nil)
	recognizers := append(DefaultRecognizers(store), sleepy)
	e, err := New(store, WithRecognizers(recognizers...), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	// More sequential calls than workers: every call must still see the
	// fast recognizers.
	for i := 0; i < 8; i++ {
		res := e.Process(context.Background(), "预订北京的机票", nil)
		require.Equal(t, "book_flight", res.Intent, "call %d", i)
		assert.Equal(t, model.SourcePattern, res.Source, "call %d", i)
		assert.Equal(t, "北京", res.Slots["destination"], "call %d", i)
	}
}

func TestProcess_PerRecognizerTimeout(t *testing.T) {
	store := rules.NewStore(rulesDir(t), nil)
	e, err := New(store,
		WithRecognizers(sleeper("patient", 150*time.Millisecond)),
		WithTimeout(20*time.Millisecond),
		WithRecognizerTimeout("patient", 2*time.Second))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	res := e.Process(context.Background(), "x", nil)
	assert.Equal(t, "slow_intent", res.Intent)
}

func TestProcess_SlotsNeverOverwritten(t *testing.T) {
	e := newEngine(t)

	// The pattern seeds destination=Paris; the slot pattern would find 北京
	res := e.Process(context.Background(), "book a flight to Paris 去北京 2024-05-01", nil)
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, "Paris", res.Slots["destination"])
	assert.Equal(t, "2024-05-01", res.Slots["date"])
}

type fakeProvider struct {
	reply map[string]any
}

func (f fakeProvider) Name() string                     { return "fake" }
func (f fakeProvider) IsAvailable(context.Context) bool { return true }
func (f fakeProvider) FillMissingSlots(context.Context, llm.SlotRequest) (map[string]any, error) {
	return f.reply, nil
}

func TestProcess_LLMNeverOverwrites(t *testing.T) {
	store := rules.NewStore(rulesDir(t), nil)
	provider := fakeProvider{reply: map[string]any{"destination": "Tokyo", "date": "2024-06-01"}}

	filledBefore := testutil.ToFloat64(slotLLMTotal.WithLabelValues(slots.OutcomeFilled))

	e, err := New(store, WithFillers(slots.NewDefault(store,
		slots.WithProvider(provider, time.Second),
		slots.WithObserver(ObserveSlotLLM))))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	res := e.Process(context.Background(), "book a flight to Paris", nil)
	assert.Equal(t, map[string]any{"destination": "Paris", "date": "2024-06-01"}, res.Slots)
	assert.Equal(t, filledBefore+1, testutil.ToFloat64(slotLLMTotal.WithLabelValues(slots.OutcomeFilled)))
}

func TestProcess_AnomalyFiller(t *testing.T) {
	batch := func(context.Context, string, model.Context) (*model.IntentResult, error) {
		res := model.NewResult(recognize.IntentSheetAnalysis, 1.0, recognize.NameSheet)
		res.Metadata[model.MetaRecords] = []model.SegmentRecord{
			segment("s1", "09:00", "09:10", "A0015"),
			segment("s2", "09:20", "09:30", "A0015"),
			segment("s3", "09:40", "09:50", "A0015"),
			segment("s4", "10:00", "10:10", "B0002"),
			segment("s5", "10:20", "10:30", "A0015", "B0002"),
		}
		return res, nil
	}
	store := rules.NewStore(rulesDir(t), nil)
	recognizers := append(DefaultRecognizers(store), recognize.Func("batch", batch))
	e, err := New(store, WithRecognizers(recognizers...))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	res := e.Process(context.Background(), "", model.Context{"slot_filler": slots.NameAnomaly})
	require.Equal(t, recognize.IntentSheetAnalysis, res.Intent)

	want := model.AnomalyReport{
		model.BucketMultiPass: {
			{Satellite: "A0015", StartTime: "09:00", EndTime: "09:50", PassCount: 3},
		},
		model.BucketSinglePass: {
			{Satellite: "B0002", StartTime: "10:00", EndTime: "10:10"},
		},
		model.BucketMultiSatellite: {
			{Satellites: []string{"A0015", "B0002"}, StartTime: "10:20", EndTime: "10:30", Note: model.MultiSatelliteNote},
		},
	}
	if diff := cmp.Diff(want, res.Slots[slots.SlotAnomalies]); diff != "" {
		t.Errorf("anomalies mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_UnknownFillerFallsBack(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := newEngine(t, WithLogger(zap.New(core)))

	res := e.Process(context.Background(), "book a flight to Paris 2024-05-01", model.Context{"slot_filler": "anomaly"})
	assert.Equal(t, "2024-05-01", res.Slots["date"], "default filler ran")

	warnings := logs.FilterMessage("Unknown slot filler, using default").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, "anomaly", fields["filler"])
	assert.Equal(t, slots.NameDefault, fields["default"])
	assert.Equal(t, slots.NameAnomaly, fields["did_you_mean"])
}

func TestProcess_PreprocessorFallback(t *testing.T) {
	echo := recognize.Func("echo", func(_ context.Context, text string, _ model.Context) (*model.IntentResult, error) {
		return model.NewResult("seen:"+text, 0.5, "echo"), nil
	})

	tests := []struct {
		name string
		pre  textproc.Preprocessor
		want string
	}{
		{"none trims", nil, "seen:Hi  There"},
		{"chain", mustChain(t, "space", "lower"), "seen:hi there"},
		{"error uses raw", textproc.Func(func(context.Context, string, model.Context) (string, error) {
			return "", errors.New("broken")
		}), "seen:  Hi  There "},
		{"panic uses raw", textproc.Func(func(context.Context, string, model.Context) (string, error) {
			panic("preprocessor exploded")
		}), "seen:  Hi  There "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, WithRecognizers(echo), WithPreprocessor(tt.pre))
			res := e.Process(context.Background(), "  Hi  There ", nil)
			assert.Equal(t, tt.want, res.Intent)
		})
	}
}

func mustChain(t *testing.T, steps ...string) *textproc.Chain {
	t.Helper()
	c, err := textproc.NewChain(steps...)
	require.NoError(t, err)
	return c
}

func TestEngine_ReloadChangesKeywordScoring(t *testing.T) {
	dir := rulesDir(t)
	e, err := New(rules.NewStore(dir, nil))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	res := e.Process(context.Background(), "flight", nil)
	assert.Equal(t, "book_flight", res.Intent)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9, "0.9 capped at 0.85")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "keywords.json"),
		[]byte(`{"book_flight": {"keywords": ["flight"], "weight": 0.3}}`), 0o644))
	e.Reload()

	res = e.Process(context.Background(), "flight", nil)
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
}

func TestProcess_ReloadDuringRequestKeepsGeneration(t *testing.T) {
	store := rules.NewStaticStore(nil,
		rules.File{Name: "intents.json", Data: []byte(intentsJSON)},
		rules.File{Name: "regex_patterns.json", Data: []byte(patternsJSON)},
	)

	var once sync.Once
	reloader := recognize.Func("reloader", func(context.Context, string, model.Context) (*model.IntentResult, error) {
		once.Do(func() {
			store.Replace(rules.File{Name: "intents.json", Data: []byte(`{"intents": [{"name": "book_flight"}]}`)})
		})
		return nil, nil
	})

	e, err := New(store, WithRecognizers(reloader, recognize.NewPattern(store)))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	genBefore := store.Current().Generation
	res := e.Process(context.Background(), "预订北京的机票 2024-05-01", nil)

	require.Greater(t, store.Current().Generation, genBefore, "rules were replaced mid-request")
	assert.Equal(t, "book_flight", res.Intent)
	assert.Equal(t, "北京", res.Slots["destination"])
	assert.Equal(t, "2024-05-01", res.Slots["date"], "slot specs come from the generation the request started with")

	res = e.Process(context.Background(), "预订北京的机票 2024-05-01", nil)
	assert.Equal(t, model.DefaultUnknownIntent, res.Intent, "the next request sees the replaced rules")
}

func TestEngine_ConcurrentProcessAndReload(t *testing.T) {
	e := newEngine(t, WithWorkers(8))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				res := e.Process(context.Background(), "预订北京的机票", nil)
				assert.Equal(t, "book_flight", res.Intent)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		e.Reload()
	}
	wg.Wait()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	store := rules.NewStore(rulesDir(t), nil)
	dup := recognize.NewContinuation()
	_, err = New(store, WithRecognizers(dup, recognize.NewContinuation()))
	assert.Error(t, err)

	_, err = New(store, WithFillers())
	assert.Error(t, err, "an empty filler list leaves no default")

	e, err := New(store)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, []string{"regex", "keyword", "continuation"}, e.Recognizers())
	assert.Equal(t, []string{slots.NameDefault, slots.NameAnomaly}, e.Fillers())
	assert.Same(t, store, e.Store())
}

func TestEngine_CloseStopsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := rules.NewStore(rulesDir(t), nil)
	recognizers := append(DefaultRecognizers(store), sleeper("slow", 5*time.Second))
	e, err := New(store, WithRecognizers(recognizers...), WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	res := e.Process(context.Background(), "weather", nil)
	assert.Equal(t, "query_weather", res.Intent)

	e.Close()
	e.Close()

	res = e.Process(context.Background(), "weather", nil)
	assert.Equal(t, "unknown_intent", res.Intent, "a closed engine runs no recognizers")
}

func segment(name, start, end string, satellites ...string) model.SegmentRecord {
	r := model.SegmentRecord{Segment: name, StartTime: start, EndTime: end}
	for _, s := range satellites {
		r.Satellites = append(r.Satellites, model.Entry[float64]{Key: s, Value: 1})
	}
	return r
}
