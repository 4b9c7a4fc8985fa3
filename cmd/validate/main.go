// Command validate checks the integrity of a /api/history export. It
// recomputes every row's stress index from the raw sensor values, checks the
// [0, 100] range, newest-first ordering, the row cap, and that every node id
// belongs to the node catalog.
//
// Usage:
//
//	curl -s 'http://localhost:3001/api/history?hours=24' > history.json
//	go run ./cmd/validate -history history.json -nodes deploy/nodes.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/citypulse/internal/catalog"
	"github.com/couchcryptid/citypulse/internal/domain"
)

const defaultMaxRows = 500

// historyRow mirrors one /api/history entry.
type historyRow struct {
	Timestamp   int64              `json:"timestamp"`
	NodeID      string             `json:"nodeId"`
	Noise       domain.Measurement `json:"noise"`
	Temp        domain.Measurement `json:"temp"`
	AirQuality  domain.Measurement `json:"airQuality"`
	Crowd       domain.Measurement `json:"crowd"`
	StressIndex int                `json:"stressIndex"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	historyPath := flag.String("history", "", "path to a JSON export of GET /api/history")
	nodesPath := flag.String("nodes", "", "node catalog file (empty uses the built-in Mohali catalog)")
	maxRows := flag.Int("max-rows", defaultMaxRows, "maximum rows a single history response may carry")
	flag.Parse()

	if *historyPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*historyPath, *nodesPath, *maxRows, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(historyPath, nodesPath string, maxRows int, out io.Writer) int {
	fmt.Fprintln(out, "=== CityPulse History Integrity Validation ===")
	fmt.Fprintln(out)

	rows, err := loadHistory(historyPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load history: %v\n", err)
		return 1
	}

	nodes, err := catalog.Load(nodesPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load node catalog: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateShape(rows, maxRows),
		validateStress(rows),
		validateOrdering(rows),
		validateNodes(rows, nodes),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-36s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d\n", len(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadHistory(path string) ([]historyRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

func validateShape(rows []historyRow, maxRows int) *phase {
	p := &phase{name: "Phase 1: Row Shape"}
	if len(rows) > maxRows {
		p.errorf("%d rows exceed the %d row cap", len(rows), maxRows)
	}
	for i, r := range rows {
		if r.NodeID == "" {
			p.errorf("row %d: missing nodeId", i)
		}
		if r.Timestamp <= 0 {
			p.errorf("row %d: invalid timestamp %d", i, r.Timestamp)
		}
	}
	return p
}

func validateStress(rows []historyRow) *phase {
	p := &phase{name: "Phase 2: Stress Index"}
	for i, r := range rows {
		if r.StressIndex < 0 || r.StressIndex > domain.MaxStress {
			p.errorf("row %d (%s): stressIndex %d outside [0, %d]", i, r.NodeID, r.StressIndex, domain.MaxStress)
			continue
		}
		want := domain.StressIndex(domain.Sensors{
			Noise:        float64(r.Noise),
			Temperature:  float64(r.Temp),
			AirQuality:   float64(r.AirQuality),
			CrowdDensity: float64(r.Crowd),
		})
		if r.StressIndex != want {
			p.errorf("row %d (%s): stressIndex %d, recomputed %d from noise=%s temp=%s aqi=%s crowd=%s",
				i, r.NodeID, r.StressIndex, want, r.Noise, r.Temp, r.AirQuality, r.Crowd)
		}
	}
	return p
}

func validateOrdering(rows []historyRow) *phase {
	p := &phase{name: "Phase 3: Newest-First Ordering"}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp > rows[i-1].Timestamp {
			p.errorf("row %d (ts=%d) is newer than row %d (ts=%d)", i, rows[i].Timestamp, i-1, rows[i-1].Timestamp)
		}
	}
	return p
}

func validateNodes(rows []historyRow, nodes *catalog.Catalog) *phase {
	p := &phase{name: "Phase 4: Node Catalog"}
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.NodeID == "" || seen[r.NodeID] {
			continue
		}
		seen[r.NodeID] = true
		if _, ok := nodes.Lookup(r.NodeID); !ok {
			p.errorf("node %s is not in the catalog", r.NodeID)
		}
	}
	return p
}
