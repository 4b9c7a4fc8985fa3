package domain

// ZoneCategory selects the baseline profile for a node.
type ZoneCategory string

const (
	ZoneCommercial  ZoneCategory = "commercial"
	ZoneResidential ZoneCategory = "residential"
	ZoneMixed       ZoneCategory = "mixed"
)

// Valid reports whether z is one of the known zone categories.
func (z ZoneCategory) Valid() bool {
	switch z {
	case ZoneCommercial, ZoneResidential, ZoneMixed:
		return true
	}
	return false
}

// Node is a fixed sensing location. Nodes come from the deployment's node
// catalog and are never created or changed by the ingestion pipeline.
type Node struct {
	ID        string       `json:"id" mapstructure:"id"`
	Name      string       `json:"name" mapstructure:"name"`
	Latitude  float64      `json:"latitude" mapstructure:"latitude"`
	Longitude float64      `json:"longitude" mapstructure:"longitude"`
	Sector    string       `json:"sector" mapstructure:"sector"`
	ZoneType  ZoneCategory `json:"zone_type" mapstructure:"zone_type"`
}
