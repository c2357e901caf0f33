package engine

import "github.com/ppiankov/intentra/internal/model"

// RegexPriorityThreshold is the confidence at which a pattern hit wins outright
const RegexPriorityThreshold = 0.8

// Fuse picks the winning candidate. results must be in recognizer
// registration order; ties keep the earlier result.
//
// A pattern result at or above RegexPriorityThreshold beats everything else,
// even a higher non-pattern confidence. Otherwise the highest confidence
// wins. With no candidates the unknown sentinel is returned.
func Fuse(results []*model.IntentResult, unknownIntent string) *model.IntentResult {
	var bestRegex *model.IntentResult
	for _, r := range results {
		if r == nil || r.Source != model.SourcePattern {
			continue
		}
		if bestRegex == nil || r.Confidence > bestRegex.Confidence {
			bestRegex = r
		}
	}
	if bestRegex != nil && bestRegex.Confidence >= RegexPriorityThreshold {
		bestRegex.SetMetadataDefault(model.MetaFusionReason, model.FusionRegexOverThreshold)
		return bestRegex
	}

	var best *model.IntentResult
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = r
		}
	}
	if best != nil {
		best.SetMetadataDefault(model.MetaFusionReason, model.FusionMaxConfidence)
		return best
	}

	return Unknown(unknownIntent, model.ReasonNoValidResult)
}

// Unknown builds the sentinel result
func Unknown(intent, reason string) *model.IntentResult {
	if intent == "" {
		intent = model.DefaultUnknownIntent
	}
	res := model.NewResult(intent, 0, model.SourceSystem)
	res.Metadata[model.MetaReason] = reason
	return res
}

// fusionLabel names the fusion outcome for metrics
func fusionLabel(res *model.IntentResult) string {
	if reason, ok := res.Metadata[model.MetaReason].(string); ok && res.Source == model.SourceSystem {
		return reason
	}
	if reason, ok := res.Metadata[model.MetaFusionReason].(string); ok {
		return reason
	}
	return "unset"
}
