package domain

import "math"

// Sensors holds the four raw signals that feed the stress index.
type Sensors struct {
	Noise        float64
	Temperature  float64
	AirQuality   float64
	CrowdDensity float64
}

// Stress index normalization and weights. The frontend recomputes the index
// with the same constants.
const (
	noiseFloor   = 40.0
	noiseSpan    = 60.0
	tempFloor    = 15.0
	tempSpan     = 25.0
	aqiSpan      = 150.0
	crowdSpan    = 30.0
	maxSubScore  = 100.0
	noiseWeight  = 0.40
	tempWeight   = 0.25
	aqiWeight    = 0.20
	crowdWeight  = 0.15
	MaxStress    = 100
	minStressIdx = 0
)

// StressIndex computes the composite 0–100 stress score. Sub-scores are
// capped at 100 but not floored, the weighted sum is rounded half away from
// zero, and the result is clamped at 0. A missing (NaN) input yields 0.
func StressIndex(s Sensors) int {
	noiseScore := math.Min((s.Noise-noiseFloor)/noiseSpan*100, maxSubScore)
	tempScore := math.Min((s.Temperature-tempFloor)/tempSpan*100, maxSubScore)
	aqiScore := math.Min(s.AirQuality/aqiSpan*100, maxSubScore)
	crowdScore := math.Min(s.CrowdDensity/crowdSpan*100, maxSubScore)

	// Conversions force each product to round separately (no FMA).
	weighted := float64(noiseScore*noiseWeight) +
		float64(tempScore*tempWeight) +
		float64(aqiScore*aqiWeight) +
		float64(crowdScore*crowdWeight)
	index := math.Round(weighted)
	if math.IsNaN(index) || index < minStressIdx {
		return minStressIdx
	}
	return int(index)
}
