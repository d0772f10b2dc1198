package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"carelink-ws-server/internal/config"
)

func f(v float64) *float64 { return &v }

func TestClassify_InclusiveBounds(t *testing.T) {
	engine := NewEngine(map[string]config.ThresholdRange{
		"heart_rate": {Min: f(40), Max: f(120)},
	})

	// Values exactly at the bounds are inside the safe range
	assert.Equal(t, Normal, engine.Classify("heart_rate", 40))
	assert.Equal(t, Normal, engine.Classify("heart_rate", 120))
	assert.Equal(t, Normal, engine.Classify("heart_rate", 72))

	// Strictly outside triggers
	assert.Equal(t, Critical, engine.Classify("heart_rate", 39.9))
	assert.Equal(t, Critical, engine.Classify("heart_rate", 120.1))
	assert.Equal(t, Critical, engine.Classify("heart_rate", 200))
}

func TestClassify_UnknownTypeIsNormal(t *testing.T) {
	engine := NewEngine(map[string]config.ThresholdRange{
		"heart_rate": {Min: f(40), Max: f(120)},
	})

	assert.Equal(t, Normal, engine.Classify("respiration_rate", 9999))
	assert.False(t, engine.HasRule("respiration_rate"))
}

func TestClassify_PartialBounds(t *testing.T) {
	engine := NewEngine(map[string]config.ThresholdRange{
		"oxygen_saturation": {Min: f(90)},
		"blood_glucose":     {Max: f(300)},
	})

	assert.Equal(t, Critical, engine.Classify("oxygen_saturation", 85))
	assert.Equal(t, Normal, engine.Classify("oxygen_saturation", 90))
	// No max configured, arbitrarily high values never trigger
	assert.Equal(t, Normal, engine.Classify("oxygen_saturation", 100))

	assert.Equal(t, Normal, engine.Classify("blood_glucose", 1))
	assert.Equal(t, Critical, engine.Classify("blood_glucose", 301))
}

func TestClassify_ZeroIsAConfiguredBound(t *testing.T) {
	// A zero-valued bound is present, not absent
	engine := NewEngine(map[string]config.ThresholdRange{
		"delta": {Min: f(0)},
	})

	assert.Equal(t, Critical, engine.Classify("delta", -0.5))
	assert.Equal(t, Normal, engine.Classify("delta", 0))
}

func TestClassify_NoBoundsNeverTriggers(t *testing.T) {
	engine := NewEngine(map[string]config.ThresholdRange{
		"weight": {},
	})

	assert.True(t, engine.HasRule("weight"))
	assert.Equal(t, Normal, engine.Classify("weight", -1e9))
	assert.Equal(t, Normal, engine.Classify("weight", 1e9))
}

func TestClassify_NilRules(t *testing.T) {
	engine := NewEngine(nil)
	assert.Equal(t, Normal, engine.Classify("heart_rate", 500))
}

func TestDefaultThresholds_CoverReportedVitals(t *testing.T) {
	engine := NewEngine(config.DefaultThresholds())

	assert.True(t, engine.HasRule("heart_rate"))
	assert.Equal(t, Critical, engine.Classify("heart_rate", 130))
	assert.Equal(t, Critical, engine.Classify("oxygen_saturation", 80))
	assert.Equal(t, Normal, engine.Classify("temperature", 36.6))
}
