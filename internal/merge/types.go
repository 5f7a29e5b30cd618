// Package merge folds the latest intermediate snapshot of every source into
// the canonical per-country dataset.
package merge

// FieldValue is one statistic attached to a country record: a scalar or a
// total/by_category composite, plus unit, reference period and staleness
// metadata.
type FieldValue struct {
	Value      *float64           `json:"value,omitempty"`
	Total      *float64           `json:"total,omitempty"`
	Unit       string             `json:"unit,omitempty"`
	ByCategory map[string]float64 `json:"by_category,omitempty"`
	Year       int                `json:"year,omitempty"`
	Month      *int               `json:"month,omitempty"`
	LagNote    string             `json:"lag_note,omitempty"`
	Source     string             `json:"source,omitempty"`
}

// CountryRecord is the merged record for one country. The identity fields
// (name, name_zh, capital) are seed data carried forward from the previous
// merged snapshot; the data fields are rebuilt from source snapshots on
// every merge.
type CountryRecord struct {
	Name    string `json:"name,omitempty"`
	NameZH  string `json:"name_zh,omitempty"`
	Capital string `json:"capital,omitempty"`

	GDP              *FieldValue `json:"gdp,omitempty"`
	OilProduction    *FieldValue `json:"oil_production,omitempty"`
	GrainProduction  *FieldValue `json:"grain_production,omitempty"`
	NonferrousMetals *FieldValue `json:"nonferrous_metals,omitempty"`
	GoldProduction   *FieldValue `json:"gold_production,omitempty"`
}

// Metadata describes one merged snapshot generation.
type Metadata struct {
	GeneratedAt string `json:"generated_at,omitempty"`
	Version     string `json:"version,omitempty"`
	LastCrawl   string `json:"last_crawl,omitempty"`
}

// Snapshot is the canonical merged dataset.
type Snapshot struct {
	Metadata  Metadata                  `json:"metadata"`
	Countries map[string]*CountryRecord `json:"countries"`
}
