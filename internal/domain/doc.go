// Package domain models urban environmental sensor readings and the decisions
// derived from them.
//
// # Data Source
//
// Readings originate from fixed monitoring nodes deployed across Mohali
// (sector-level street furniture). Each node reports four raw values roughly
// every five minutes, either over HTTP (POST /api/ingest) or MQTT. Node
// metadata (name, coordinates, sector, zone) is provisioned ahead of time and
// never travels with a reading; a reading carries only its node identifier.
//
// # Sensor Conventions
//
//	noise          A-weighted sound level in dB(A). Quiet residential night ≈ 35,
//	               busy commercial evening ≈ 70.
//	temperature    Ambient air temperature in °C.
//	air_quality    CPCB Air Quality Index, unitless (0–500).
//	crowd_density  Estimated people per 100 m² in the sensor's field of view.
//
// Missing or non-numeric values are not rejected. They are carried as NaN
// (see [Measurement]) and serialize as JSON null.
//
// # Stress Index
//
// The stress index folds the four signals into one integer in [0, 100]:
//
//	noise         (noise - 40) / 60       weight 0.40
//	temperature   (temperature - 15) / 25 weight 0.25
//	air quality   air_quality / 150       weight 0.20
//	crowd         crowd_density / 30      weight 0.15
//
// Each sub-score is scaled to 0–100 and capped above at 100 but not below at
// 0, so a very quiet, cool node can pull the composite under zero before the
// final clamp. The frontend recomputes the index independently from the same
// raw values, so the constants and the half-away-from-zero rounding in
// [StressIndex] must not drift.
//
// # Anomaly Thresholds
//
// When the remote scorer is unreachable the local heuristic in
// [FallbackOutcome] applies fixed thresholds:
//
//	noise > 85 dB          "noise"
//	temperature > 35 °C    "heat"
//	air_quality > 120      "air_quality"
//	crowd_density > 25     "crowd"
//	stress index > 80      "composite" (only when no other explanation applies)
//
// Any single threshold breach is enough to flag the reading, even when the
// composite stress index is moderate.
//
// # Zones
//
// Zone categories (commercial, residential, mixed) select baseline profiles
// for demo data and forecasting. The ingestion path never reads them.
package domain
