package model

import (
	"strconv"
	"strings"
	"time"
)

// Context keys understood by the built-in recognizers and the engine
const (
	CtxLastIntent           = "last_intent"
	CtxSlotFiller           = "slot_filler"
	CtxTriggerSheet         = "trigger_sheet"
	CtxSheetType            = "sheet_type"
	CtxSheetPath            = "sheet_path"
	CtxSheetName            = "sheet_name"
	CtxDurationThreshold    = "duration_threshold"
	CtxIgnoreNoInterruption = "ignore_no_interruption"
	CtxSegmentPattern       = "segment_pattern"
)

// Context carries caller-supplied conversational state. It is read-only for
// everything inside the engine.
type Context map[string]any

// String returns the string value for key, or "" when absent or not a string
func (c Context) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// Bool interprets key as a boolean flag. Strings such as "true" and "1" are accepted.
func (c Context) Bool(key string) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

// BoolDefault is like Bool but returns def when the key is absent
func (c Context) BoolDefault(key string, def bool) bool {
	if _, ok := c[key]; !ok {
		return def
	}
	return c.Bool(key)
}

// Float returns a numeric value for key, or def when absent or unparsable
func (c Context) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case time.Duration:
		return t.Seconds()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// LastIntent returns the intent of the previous conversational turn
func (c Context) LastIntent() string {
	return c.String(CtxLastIntent)
}

// SlotFiller returns the requested slot filler name
func (c Context) SlotFiller() string {
	return c.String(CtxSlotFiller)
}
