package textproc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewChain_UnknownStep(t *testing.T) {
	_, err := NewChain("space", "stem")
	if err == nil {
		t.Fatal("expected error for unknown step")
	}
	if !strings.Contains(err.Error(), "stem") {
		t.Errorf("error should name the step, got %v", err)
	}
}

func TestChain_Preprocess(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
		input string
		want  string
	}{
		{"empty chain", nil, "  Hello  ", "  Hello  "},
		{"space", []string{"space"}, "  book \t a\n flight ", "book a flight"},
		{"lower", []string{"lower"}, "Book FLIGHT", "book flight"},
		{"width", []string{"width"}, "ＡＢＣ１２３", "ABC123"},
		{"nfkc", []string{"nfkc"}, "ｶﾞ", "ガ"},
		{"html then space", []string{"html", "space"}, "<p>book</p><p>a <b>flight</b></p>", "book a flight"},
		{"html drops script", []string{"html", "space"}, "hi<script>alert(1)</script> there", "hi there"},
		{"html entities", []string{"html"}, "fish &amp; chips", "fish & chips"},
		{"case-insensitive names", []string{" SPACE ", "Lower"}, " A  B ", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChain(tt.steps...)
			if err != nil {
				t.Fatalf("NewChain() error = %v", err)
			}
			got, err := c.Preprocess(context.Background(), tt.input, nil)
			if err != nil {
				t.Fatalf("Preprocess() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Preprocess() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_StepErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	c, err := NewChain("space")
	if err != nil {
		t.Fatal(err)
	}
	c.steps = append(c.steps, Step{Name: "fail", Fn: func(string) (string, error) { return "", boom }})

	_, err = c.Preprocess(context.Background(), "x", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if got := c.Steps(); len(got) != 2 || got[1] != "fail" {
		t.Errorf("Steps() = %v", got)
	}
}

func TestChain_CancelledContext(t *testing.T) {
	c, _ := NewChain("space")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Preprocess(ctx, "x", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStripHTML_PlainTextUntouched(t *testing.T) {
	in := "no markup 3 > 2"
	got, err := StripHTML(in)
	if err != nil || got != in {
		t.Errorf("StripHTML(%q) = %q, %v", in, got, err)
	}
}
