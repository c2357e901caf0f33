package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SlotProvider asks a language model for slot values the rules could not extract
type SlotProvider interface {
	// Name returns the provider name
	Name() string

	// FillMissingSlots returns values for some or all of req.Missing.
	// Keys outside req.Allowed are never returned.
	FillMissingSlots(ctx context.Context, req SlotRequest) (map[string]any, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SlotRequest contains the input for one slot-filling call
type SlotRequest struct {
	// Text is the untouched user input
	Text string

	// Intent is the recognized intent
	Intent string

	// CurrentSlots holds values already extracted; the model must not change them
	CurrentSlots map[string]any

	// Missing lists the slots the model should look for
	Missing []string

	// Allowed lists every slot of the intent. Empty means Missing.
	Allowed []string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

func (r SlotRequest) allowed() []string {
	if len(r.Allowed) > 0 {
		return r.Allowed
	}
	return r.Missing
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Per-intent request rate; 0 disables limiting
	RatePerSecond float64
	Burst         int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 300,
	}
}

const systemPrompt = "You extract parameter values from user requests. Reply with a single JSON object and nothing else."

// BuildSlotPrompt constructs the user prompt for a slot-filling call
func BuildSlotPrompt(req SlotRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intent: %s\n", req.Intent)
	fmt.Fprintf(&b, "User text: %q\n\n", req.Text)

	if len(req.CurrentSlots) > 0 {
		// json.Marshal sorts map keys, keeping the prompt stable
		known, _ := json.Marshal(req.CurrentSlots)
		fmt.Fprintf(&b, "Already known (do not repeat or change): %s\n", known)
	}

	fmt.Fprintf(&b, "Find values for these parameters: %s\n\n", strings.Join(req.Missing, ", "))
	b.WriteString("RULES:\n")
	b.WriteString("1. Only use the keys listed above.\n")
	b.WriteString("2. Only include a key when its value is stated or clearly implied by the text.\n")
	b.WriteString("3. Use string values unless the text gives a number.\n")
	b.WriteString("4. If nothing can be found, reply with {}.\n")
	return b.String()
}

// ErrNoJSON is returned when a model reply contains no JSON object
var ErrNoJSON = errors.New("no JSON object in model reply")

// ParseSlots extracts the first JSON object from a model reply and keeps only
// allowed keys with non-empty values. Code fences and surrounding prose are tolerated.
func ParseSlots(reply string, allowed []string) (map[string]any, error) {
	obj, err := firstJSONObject(reply)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		keep[k] = true
	}

	out := make(map[string]any)
	for k, v := range obj {
		if !keep[k] || v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func firstJSONObject(s string) (map[string]any, error) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil {
			return obj, nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSON
}

func resolveModel(req SlotRequest, cfg Config, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return fallback
}

func resolveMaxTokens(req SlotRequest, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 300
}
