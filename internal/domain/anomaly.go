package domain

import (
	"encoding/json"
	"time"
)

// OutcomeSource records which path produced an anomaly decision.
type OutcomeSource string

const (
	SourceRemote    OutcomeSource = "remote"
	SourceHeuristic OutcomeSource = "heuristic"
)

// AnomalyOutcome is the decision made for a single reading. Source is kept
// for logs and metrics only. Raw holds the scorer's response body; when set
// it is what the outcome serializes as.
type AnomalyOutcome struct {
	IsAnomaly    bool            `json:"is_anomaly"`
	AnomalyScore *float64        `json:"anomaly_score,omitempty"`
	Signals      []string        `json:"signals,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	Source       OutcomeSource   `json:"-"`
	Raw          json.RawMessage `json:"-"`
}

func (o AnomalyOutcome) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	type fields AnomalyOutcome
	return json.Marshal(fields(o))
}

// RemoteOutcome wraps a decision returned by the scoring service.
func RemoteOutcome(isAnomaly bool, score *float64, signals []string, explanation string) AnomalyOutcome {
	return AnomalyOutcome{
		IsAnomaly:    isAnomaly,
		AnomalyScore: score,
		Signals:      signals,
		Explanation:  explanation,
		Source:       SourceRemote,
	}
}

// HeuristicOutcome wraps a decision made by the local threshold fallback.
func HeuristicOutcome(isAnomaly bool, score float64, signals []string, explanation string) AnomalyOutcome {
	return AnomalyOutcome{
		IsAnomaly:    isAnomaly,
		AnomalyScore: &score,
		Signals:      signals,
		Explanation:  explanation,
		Source:       SourceHeuristic,
	}
}

// Score returns the anomaly score, or 0 when the scorer did not supply one.
func (o AnomalyOutcome) Score() float64 {
	if o.AnomalyScore == nil {
		return 0
	}
	return *o.AnomalyScore
}

// AnomalyRecord is the persisted trace of a reading flagged as anomalous.
// ID is assigned by the store on append.
type AnomalyRecord struct {
	ID           int64     `json:"id"`
	Time         time.Time `json:"time"`
	NodeID       string    `json:"node_id"`
	AnomalyScore float64   `json:"anomaly_score"`
	Signals      []string  `json:"signals"`
	Explanation  string    `json:"explanation"`
	StressIndex  int       `json:"stress_index"`
}

// NewAnomalyRecord snapshots a flagged reading. Signals keep their detection
// order; duplicates reported by the scorer are dropped.
func NewAnomalyRecord(r Reading, o AnomalyOutcome) AnomalyRecord {
	return AnomalyRecord{
		Time:         r.Time,
		NodeID:       r.NodeID,
		AnomalyScore: o.Score(),
		Signals:      uniqueSignals(o.Signals),
		Explanation:  o.Explanation,
		StressIndex:  r.StressIndex,
	}
}

func uniqueSignals(signals []string) []string {
	out := make([]string, 0, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
