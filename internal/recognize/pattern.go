package recognize

import (
	"context"
	"regexp"
	"unicode/utf8"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/rules"
)

const (
	patternBaseConfidence = 0.9
	patternLengthBonus    = 0.1
)

// Pattern matches the intent regular expressions of the current rule set.
// The longer the match relative to the text, the higher the confidence.
type Pattern struct {
	store *rules.Store
}

// NewPattern creates a pattern recognizer over store
func NewPattern(store *rules.Store) *Pattern {
	return &Pattern{store: store}
}

// Name returns "regex"
func (p *Pattern) Name() string {
	return model.SourcePattern
}

// Parse searches text with every pattern of every intent and keeps the best hit
func (p *Pattern) Parse(ctx context.Context, text string, _ model.Context) (*model.IntentResult, error) {
	rs := p.store.At(ctx)
	intents := rs.IntentPatterns()
	if len(intents) == 0 {
		return nil, nil
	}

	textLen := max(utf8.RuneCountInString(text), 1)

	var (
		bestIntent string
		bestConf   float64
		bestGroups map[string]string
		hits       = make(map[string]any)
	)

	for _, ip := range intents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var intentHits []map[string]any
		for _, pat := range ip.Patterns {
			loc := pat.Re.FindStringSubmatchIndex(text)
			if loc == nil {
				continue
			}

			matchLen := utf8.RuneCountInString(text[loc[0]:loc[1]])
			conf := patternBaseConfidence + min(float64(matchLen)/float64(textLen)*patternLengthBonus, patternLengthBonus)
			groups := namedGroups(pat.Re, text, loc)

			// Strictly greater keeps the first-seen hit on ties
			if conf > bestConf {
				bestConf = conf
				bestIntent = ip.Intent
				bestGroups = groups
			}
			intentHits = append(intentHits, map[string]any{
				"pattern": pat.Source,
				"groups":  groups,
			})
		}
		if len(intentHits) > 0 {
			hits[ip.Intent] = intentHits
		}
	}

	if bestIntent == "" {
		return nil, nil
	}

	res := model.NewResult(bestIntent, bestConf, model.SourcePattern)
	for name, value := range bestGroups {
		res.SetSlot(name, value)
	}
	res.RawMatches = hits
	return res, nil
}

// namedGroups returns the named groups that took part in the match
func namedGroups(re *regexp.Regexp, text string, loc []int) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || 2*i+1 >= len(loc) {
			continue
		}
		if loc[2*i] < 0 {
			continue
		}
		groups[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return groups
}
