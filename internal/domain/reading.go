package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Measurement is a raw sensor value. NaN marks a value that was missing or
// not numeric in the submitted payload; it serializes as JSON null.
type Measurement float64

// Missing returns the Measurement used for absent values.
func Missing() Measurement { return Measurement(math.NaN()) }

// IsMissing reports whether the value was absent or unparseable.
func (m Measurement) IsMissing() bool {
	return math.IsNaN(float64(m)) || math.IsInf(float64(m), 0)
}

func (m Measurement) MarshalJSON() ([]byte, error) {
	if m.IsMissing() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(m), 'f', -1, 64), nil
}

// UnmarshalJSON never fails: numbers decode as-is, numeric strings are
// parsed, and anything else becomes a missing value.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Missing()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*m = Measurement(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*m = Measurement(f)
			return nil
		}
	}
	*m = Missing()
	return nil
}

// String formats the value the way it appears in explanations.
func (m Measurement) String() string {
	if m.IsMissing() {
		return "NaN"
	}
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

// RawReading is the payload submitted by a node, before scoring.
type RawReading struct {
	NodeID       string      `json:"node_id"`
	Noise        Measurement `json:"noise"`
	Temperature  Measurement `json:"temperature"`
	AirQuality   Measurement `json:"air_quality"`
	CrowdDensity Measurement `json:"crowd_density"`
}

// DecodeRawReading parses an ingest payload. Sensor fields absent from the
// payload decode as missing rather than zero. A numeric node_id is taken as
// its decimal text; any other non-string node_id decodes as empty. Only a
// syntactically broken document is an error; the node id is checked later by
// the pipeline.
func DecodeRawReading(data []byte) (RawReading, error) {
	var payload struct {
		RawReading
		NodeID json.RawMessage `json:"node_id"`
	}
	payload.RawReading = RawReading{
		Noise:        Missing(),
		Temperature:  Missing(),
		AirQuality:   Missing(),
		CrowdDensity: Missing(),
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return RawReading{}, fmt.Errorf("decode reading: %w", err)
	}
	raw := payload.RawReading
	raw.NodeID = decodeNodeID(payload.NodeID)
	return raw, nil
}

func decodeNodeID(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return ""
}

// Reading is one scored observation from a node. It is created once per
// ingestion and not modified after it has been stored.
type Reading struct {
	Time         time.Time       `json:"time"`
	NodeID       string          `json:"node_id"`
	Noise        Measurement     `json:"noise"`
	Temperature  Measurement     `json:"temperature"`
	AirQuality   Measurement     `json:"air_quality"`
	CrowdDensity Measurement     `json:"crowd_density"`
	StressIndex  int             `json:"stress_index"`
	Anomaly      *AnomalyOutcome `json:"anomaly,omitempty"`
}

// NewReading stamps a raw reading with its observation time and computes the
// stress index from its own raw values.
func NewReading(raw RawReading, at time.Time) Reading {
	r := Reading{
		Time:         at.UTC(),
		NodeID:       raw.NodeID,
		Noise:        raw.Noise,
		Temperature:  raw.Temperature,
		AirQuality:   raw.AirQuality,
		CrowdDensity: raw.CrowdDensity,
	}
	r.StressIndex = StressIndex(r.Sensors())
	return r
}

// Sensors returns the raw values as plain floats.
func (r Reading) Sensors() Sensors {
	return Sensors{
		Noise:        float64(r.Noise),
		Temperature:  float64(r.Temperature),
		AirQuality:   float64(r.AirQuality),
		CrowdDensity: float64(r.CrowdDensity),
	}
}
