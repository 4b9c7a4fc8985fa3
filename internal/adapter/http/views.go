package http

import (
	"github.com/couchcryptid/citypulse/internal/domain"
)

const unknownNodeName = "Unknown"

// historyRow is one /api/history entry in the chart-friendly shape.
type historyRow struct {
	Timestamp   int64              `json:"timestamp"`
	NodeID      string             `json:"nodeId"`
	Noise       domain.Measurement `json:"noise"`
	Temp        domain.Measurement `json:"temp"`
	AirQuality  domain.Measurement `json:"airQuality"`
	Crowd       domain.Measurement `json:"crowd"`
	StressIndex int                `json:"stressIndex"`
}

func newHistoryRows(readings []domain.Reading) []historyRow {
	rows := make([]historyRow, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, historyRow{
			Timestamp:   r.Time.UnixMilli(),
			NodeID:      r.NodeID,
			Noise:       r.Noise,
			Temp:        r.Temperature,
			AirQuality:  r.AirQuality,
			Crowd:       r.CrowdDensity,
			StressIndex: r.StressIndex,
		})
	}
	return rows
}

// anomalyRow is an anomaly record joined with its node's catalog entry.
type anomalyRow struct {
	ID           int64    `json:"id"`
	Timestamp    int64    `json:"timestamp"`
	NodeID       string   `json:"nodeId"`
	NodeName     string   `json:"nodeName"`
	Sector       string   `json:"sector"`
	AnomalyScore float64  `json:"anomalyScore"`
	Signals      []string `json:"signals"`
	Explanation  string   `json:"explanation"`
	StressIndex  int      `json:"stressIndex"`
}

func newAnomalyRows(records []domain.AnomalyRecord, nodes NodeCatalog) []anomalyRow {
	rows := make([]anomalyRow, 0, len(records))
	for _, rec := range records {
		row := anomalyRow{
			ID:           rec.ID,
			Timestamp:    rec.Time.UnixMilli(),
			NodeID:       rec.NodeID,
			NodeName:     unknownNodeName,
			AnomalyScore: rec.AnomalyScore,
			Signals:      rec.Signals,
			Explanation:  rec.Explanation,
			StressIndex:  rec.StressIndex,
		}
		if row.Signals == nil {
			row.Signals = []string{}
		}
		if n, ok := nodes.Lookup(rec.NodeID); ok {
			row.NodeName = n.Name
			row.Sector = n.Sector
		}
		rows = append(rows, row)
	}
	return rows
}

// newLiveNodes joins the latest readings with the catalog. Readings from
// nodes outside the catalog have no map position and are left out.
func newLiveNodes(latest []domain.Reading, nodes NodeCatalog) []domain.LiveNode {
	out := make([]domain.LiveNode, 0, len(latest))
	for _, r := range latest {
		n, ok := nodes.Lookup(r.NodeID)
		if !ok {
			continue
		}
		out = append(out, domain.NewLiveNode(n, r))
	}
	return out
}
