package llm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseSlots(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		allowed []string
		want    map[string]any
		wantErr bool
	}{
		{
			name:    "plain object",
			reply:   `{"city": "Paris"}`,
			allowed: []string{"city"},
			want:    map[string]any{"city": "Paris"},
		},
		{
			name:    "prose and fences",
			reply:   "Here you go:\n```json\n{\"city\": \"Paris\", \"extra\": 1}\n```",
			allowed: []string{"city"},
			want:    map[string]any{"city": "Paris"},
		},
		{
			name:    "skips broken brace",
			reply:   `{oops} then {"city": "Rome"}`,
			allowed: []string{"city"},
			want:    map[string]any{"city": "Rome"},
		},
		{
			name:    "drops null and blank",
			reply:   `{"city": null, "date": "  ", "count": 2}`,
			allowed: []string{"city", "date", "count"},
			want:    map[string]any{"count": float64(2)},
		},
		{
			name:    "no object",
			reply:   "nothing here",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlots(tt.reply, tt.allowed)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("expected ErrNoJSON, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSlots() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseSlots() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("slot %s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestBuildSlotPrompt(t *testing.T) {
	prompt := BuildSlotPrompt(SlotRequest{
		Text:         "fly to Paris",
		Intent:       "book_flight",
		CurrentSlots: map[string]any{"destination": "Paris"},
		Missing:      []string{"date", "seat"},
	})

	for _, want := range []string{"book_flight", `"fly to Paris"`, `{"destination":"Paris"}`, "date, seat"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil || p != nil {
		t.Fatalf("empty provider should disable the fallback, got %v, %v", p, err)
	}

	if _, err := NewProvider(Config{Provider: "gemini"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	p, err = NewProvider(Config{Provider: "Ollama", Model: "qwen2.5"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %s", p.Name())
	}

	p, err = NewProvider(Config{Provider: "claude", APIKey: "k", RatePerSecond: 1, Burst: 2})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if _, ok := p.(*RateLimited); !ok {
		t.Errorf("expected rate-limited wrapper, got %T", p)
	}
	if p.Name() != "anthropic" {
		t.Errorf("wrapper should report the inner name, got %s", p.Name())
	}
}

type countingProvider struct {
	calls atomic.Int32
}

func (c *countingProvider) Name() string                         { return "counting" }
func (c *countingProvider) IsAvailable(ctx context.Context) bool { return true }
func (c *countingProvider) FillMissingSlots(ctx context.Context, req SlotRequest) (map[string]any, error) {
	c.calls.Add(1)
	return map[string]any{}, nil
}

func TestRateLimited_PerIntentBuckets(t *testing.T) {
	inner := &countingProvider{}
	rl := NewRateLimited(inner, 0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := rl.FillMissingSlots(ctx, SlotRequest{Intent: "a"}); err != nil {
		t.Fatalf("first call for a: %v", err)
	}
	if _, err := rl.FillMissingSlots(ctx, SlotRequest{Intent: "b"}); err != nil {
		t.Fatalf("first call for b: %v", err)
	}
	if _, err := rl.FillMissingSlots(ctx, SlotRequest{Intent: "a"}); err == nil {
		t.Fatal("second call for a should be throttled past the deadline")
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2", got)
	}
}
