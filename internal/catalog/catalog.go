// Package catalog holds the fixed set of sensing nodes known to the service.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/spf13/viper"
)

// Catalog is an immutable, id-indexed set of nodes.
type Catalog struct {
	nodes []domain.Node
	byID  map[string]domain.Node
}

// Mohali returns the built-in five-node deployment.
func Mohali() *Catalog {
	c, _ := New([]domain.Node{
		{ID: "CP-MOH-01", Name: "IT Park Sector 70", Latitude: 30.7046, Longitude: 76.6934, Sector: "Sector 70", ZoneType: domain.ZoneCommercial},
		{ID: "CP-MOH-02", Name: "Phase 11", Latitude: 30.7010, Longitude: 76.7179, Sector: "Phase 11", ZoneType: domain.ZoneResidential},
		{ID: "CP-MOH-03", Name: "Phase 7", Latitude: 30.7120, Longitude: 76.7292, Sector: "Phase 7", ZoneType: domain.ZoneMixed},
		{ID: "CP-MOH-04", Name: "Sector 77", Latitude: 30.6815, Longitude: 76.6512, Sector: "Sector 77", ZoneType: domain.ZoneResidential},
		{ID: "CP-MOH-05", Name: "Phase 3B2", Latitude: 30.6885, Longitude: 76.7245, Sector: "Phase 3B2", ZoneType: domain.ZoneCommercial},
	})
	return c
}

// Load reads the catalog from a YAML, JSON or TOML file with a top-level
// "nodes" list. An empty path returns the built-in Mohali catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Mohali(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read node catalog %s: %w", path, err)
	}

	var nodes []domain.Node
	if err := v.UnmarshalKey("nodes", &nodes); err != nil {
		return nil, fmt.Errorf("decode node catalog %s: %w", path, err)
	}
	return New(nodes)
}

// New validates nodes and builds a catalog sorted by id.
func New(nodes []domain.Node) (*Catalog, error) {
	if len(nodes) == 0 {
		return nil, errors.New("node catalog is empty")
	}

	c := &Catalog{
		nodes: make([]domain.Node, 0, len(nodes)),
		byID:  make(map[string]domain.Node, len(nodes)),
	}
	for i, n := range nodes {
		n.ID = strings.TrimSpace(n.ID)
		switch {
		case n.ID == "":
			return nil, fmt.Errorf("node %d: id is required", i)
		case !n.ZoneType.Valid():
			return nil, fmt.Errorf("node %s: unknown zone_type %q", n.ID, n.ZoneType)
		}
		if _, dup := c.byID[n.ID]; dup {
			return nil, fmt.Errorf("node %s: duplicate id", n.ID)
		}
		c.byID[n.ID] = n
		c.nodes = append(c.nodes, n)
	}
	slices.SortFunc(c.nodes, func(a, b domain.Node) int { return strings.Compare(a.ID, b.ID) })
	return c, nil
}

// All returns every node ordered by id.
func (c *Catalog) All() []domain.Node {
	return slices.Clone(c.nodes)
}

// Lookup returns the node with the given id.
func (c *Catalog) Lookup(id string) (domain.Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}
