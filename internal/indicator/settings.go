package indicator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Settings is one indicator's resolved configuration: setting name to scalar
// value. Immutable for the duration of one computation.
type Settings map[string]any

func (s Settings) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func (s Settings) String(key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ""
}

func (s Settings) clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Resolve merges persisted per-course settings over the indicator defaults.
// Persisted values matching the indicator's weight pattern are human-entered
// percentages and are divided by 100 exactly once, after the merge; defaults
// are already fractions and pass through untouched.
func Resolve(persisted map[string]string, defaults Settings, isWeight func(string) bool) Settings {
	merged := defaults.clone()
	for name, raw := range persisted {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			merged[name] = f
		} else {
			merged[name] = raw
		}
	}
	for name := range persisted {
		if !isWeight(name) {
			continue
		}
		if f, ok := merged[name].(float64); ok {
			merged[name] = f / 100
		}
	}
	return merged
}

// weightSum totals the named weight settings; used both for risk
// accumulation bounds and the maximal-risk shortcut.
func weightSum(cfg Settings, keys ...string) float64 {
	var sum float64
	for _, k := range keys {
		sum += cfg.Float(k)
	}
	return sum
}

// validatePercentSum enforces the save-time rule that a family of
// human-entered weight percentages sums to 100. Only applies when at least
// one of the keys is present in the persisted values.
func validatePercentSum(persisted map[string]string, match func(string) bool) error {
	var sum float64
	found := false
	var names []string
	for name, raw := range persisted {
		if !match(name) {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("setting %s: not a number: %q", name, raw)
		}
		found = true
		sum += f
		names = append(names, name)
	}
	if !found {
		return nil
	}
	if math.Abs(sum-100) > 1e-9 {
		sort.Strings(names)
		return fmt.Errorf("weightings %s must sum to 100, got %g", strings.Join(names, ", "), sum)
	}
	return nil
}
