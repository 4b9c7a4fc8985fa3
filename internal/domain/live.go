package domain

// LiveSensors is the sensor block of a live node snapshot, keyed the way the
// map frontend expects.
type LiveSensors struct {
	Noise      Measurement `json:"noise"`
	Temp       Measurement `json:"temp"`
	AirQuality Measurement `json:"airQuality"`
	Crowd      Measurement `json:"crowd"`
}

// LiveNode is the latest state of one node joined with its catalog entry.
type LiveNode struct {
	NodeID        string       `json:"nodeId"`
	Name          string       `json:"name"`
	Coordinates   [2]float64   `json:"coordinates"` // [lon, lat]
	Sensors       LiveSensors  `json:"sensors"`
	StressIndex   int          `json:"stressIndex"`
	IsAnomaly     bool         `json:"isAnomaly"`
	AIExplanation string       `json:"aiExplanation"`
	Timestamp     int64        `json:"timestamp"` // unix millis
	Sector        string       `json:"sector"`
	ZoneType      ZoneCategory `json:"zoneType"`
}

const (
	elevatedStress       = 55
	thermalLiveThreshold = 32.0
)

// NewLiveNode builds the live snapshot for a node from its latest reading.
func NewLiveNode(n Node, r Reading) LiveNode {
	return LiveNode{
		NodeID:      n.ID,
		Name:        n.Name,
		Coordinates: [2]float64{n.Longitude, n.Latitude},
		Sensors: LiveSensors{
			Noise:      r.Noise,
			Temp:       r.Temperature,
			AirQuality: r.AirQuality,
			Crowd:      r.CrowdDensity,
		},
		StressIndex:   r.StressIndex,
		IsAnomaly:     r.StressIndex > CompositeThreshold,
		AIExplanation: LiveExplanation(r),
		Timestamp:     r.Time.UnixMilli(),
		Sector:        n.Sector,
		ZoneType:      n.ZoneType,
	}
}

// LiveExplanation is the one-line status shown on the map for a reading.
func LiveExplanation(r Reading) string {
	switch {
	case r.StressIndex > CompositeThreshold:
		if float64(r.Noise) > NoiseThreshold {
			return "Critical noise levels detected. Likely heavy construction or congestion."
		}
		if float64(r.Temperature) > thermalLiveThreshold {
			return "High thermal stress. Heat island effect detected in this sector."
		}
		return "Multi-sensor correlation indicates a localized urban stress anomaly."
	case r.StressIndex > elevatedStress:
		return "Elevated activity levels. Monitoring for potential ordinance threshold breach."
	default:
		return "Sensing parameters nominal. No immediate infrastructure intervention required."
	}
}
