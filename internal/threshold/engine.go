// Package threshold classifies vital sign readings against per-metric safe
// ranges. Critical readings are escalated to staff rooms by the dispatcher.
package threshold

import (
	"carelink-ws-server/internal/config"
)

// Classification of a vital sign reading.
type Classification int

const (
	Normal Classification = iota
	Critical
)

func (c Classification) String() string {
	if c == Critical {
		return "critical"
	}
	return "normal"
}

// Engine evaluates readings against a static rule set. Bound presence is
// explicit: a nil bound is absent, a zero-valued bound is configured and
// can trigger. A rule with no configured bounds never triggers.
type Engine struct {
	rules map[string]config.ThresholdRange
}

// NewEngine builds an engine from configured rules. A nil rule map yields
// an engine that classifies everything as Normal.
func NewEngine(rules map[string]config.ThresholdRange) *Engine {
	if rules == nil {
		rules = make(map[string]config.ThresholdRange)
	}
	return &Engine{rules: rules}
}

// Classify returns Critical iff a bound is configured for the vital type
// and the value falls strictly outside it. Values exactly at a bound are
// Normal: the safe range is inclusive. Unknown vital types are Normal.
func (e *Engine) Classify(vitalType string, value float64) Classification {
	rule, ok := e.rules[vitalType]
	if !ok {
		return Normal
	}
	if rule.Min != nil && value < *rule.Min {
		return Critical
	}
	if rule.Max != nil && value > *rule.Max {
		return Critical
	}
	return Normal
}

// HasRule reports whether a safe range is configured for the vital type.
func (e *Engine) HasRule(vitalType string) bool {
	_, ok := e.rules[vitalType]
	return ok
}
