package domain

import (
	"math"
	"slices"
)

// Fallback thresholds, see the package documentation.
const (
	NoiseThreshold       = 85.0
	HeatThreshold        = 35.0
	AirQualityThreshold  = 120.0
	CrowdThreshold       = 25.0
	CompositeThreshold   = 80
	maxHeuristicScore    = 0.99
	compositeExplanation = "Multi-sensor correlation indicates urban stress anomaly"
)

// Signal labels in detection priority order.
const (
	SignalNoise      = "noise"
	SignalHeat       = "heat"
	SignalAirQuality = "air_quality"
	SignalCrowd      = "crowd"
	SignalComposite  = "composite"
)

// FallbackOutcome classifies a reading with fixed thresholds. It is used
// whenever the remote scorer cannot give an answer and is fully
// deterministic. Missing values never trip a threshold.
func FallbackOutcome(r Reading) AnomalyOutcome {
	var signals []string
	if float64(r.Noise) > NoiseThreshold {
		signals = append(signals, SignalNoise)
	}
	if float64(r.Temperature) > HeatThreshold {
		signals = append(signals, SignalHeat)
	}
	if float64(r.AirQuality) > AirQualityThreshold {
		signals = append(signals, SignalAirQuality)
	}
	if float64(r.CrowdDensity) > CrowdThreshold {
		signals = append(signals, SignalCrowd)
	}

	if len(signals) == 0 && r.StressIndex <= CompositeThreshold {
		return AnomalyOutcome{IsAnomaly: false, Source: SourceHeuristic}
	}

	var explanation string
	switch {
	case slices.Contains(signals, SignalNoise):
		explanation = "Noise level " + r.Noise.String() + " dB exceeds Mohali evening baseline"
	case slices.Contains(signals, SignalHeat):
		explanation = "Temperature " + r.Temperature.String() + "C indicates heat stress"
	case slices.Contains(signals, SignalAirQuality):
		explanation = "AQI " + r.AirQuality.String() + " above safe threshold"
	case r.StressIndex > CompositeThreshold:
		explanation = compositeExplanation
		signals = append(signals, SignalComposite)
	}

	score := math.Min(float64(r.StressIndex)/100, maxHeuristicScore)
	isAnomaly := r.StressIndex > CompositeThreshold || len(signals) > 0
	return HeuristicOutcome(isAnomaly, score, signals, explanation)
}
