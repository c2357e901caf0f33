package model

// Source tags carried in IntentResult.Source
const (
	SourcePattern      = "regex"
	SourceKeyword      = "keyword"
	SourceContinuation = "continuation"
	SourceSystem       = "system"
)

// Metadata keys shared between recognizers, the engine and slot fillers
const (
	MetaFusionReason       = "fusion_reason"
	MetaReason             = "reason"
	MetaRequestID          = "request_id"
	MetaContinuationReason = "continuation_reason"
	MetaRecords            = "data"
)

// Fusion reasons
const (
	FusionRegexOverThreshold = "regex_confidence_over_0.8"
	FusionMaxConfidence      = "max_confidence"
	ReasonNoValidResult      = "no_valid_result"
)

// DefaultUnknownIntent is used when the intent catalog does not name one
const DefaultUnknownIntent = "unknown"

// IntentResult is the value passed between recognizers, the fusion step and slot fillers.
// A fresh result is built for every request.
type IntentResult struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	Slots      map[string]any `json:"slots"`
	RawMatches map[string]any `json:"raw_matches,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewResult builds a result with initialised maps and a clamped confidence
func NewResult(intent string, confidence float64, source string) *IntentResult {
	return &IntentResult{
		Intent:     intent,
		Confidence: ClampConfidence(confidence),
		Source:     source,
		Slots:      make(map[string]any),
		RawMatches: make(map[string]any),
		Metadata:   make(map[string]any),
	}
}

// ClampConfidence keeps a confidence within [0, 1]
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// SetSlot stores a slot value unless the key is already present.
// It reports whether the value was stored.
func (r *IntentResult) SetSlot(name string, value any) bool {
	if r.Slots == nil {
		r.Slots = make(map[string]any)
	}
	if _, exists := r.Slots[name]; exists {
		return false
	}
	r.Slots[name] = value
	return true
}

// HasSlot reports whether a slot is set
func (r *IntentResult) HasSlot(name string) bool {
	_, ok := r.Slots[name]
	return ok
}

// SetMetadataDefault sets a metadata key only if it is absent
func (r *IntentResult) SetMetadataDefault(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	if _, exists := r.Metadata[key]; !exists {
		r.Metadata[key] = value
	}
}

// CloneSlots returns a shallow copy of the slot map
func (r *IntentResult) CloneSlots() map[string]any {
	out := make(map[string]any, len(r.Slots))
	for k, v := range r.Slots {
		out[k] = v
	}
	return out
}
