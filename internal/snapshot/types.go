// Package snapshot persists per-source crawl output as dated JSON documents
// and retrieves the most recent document per source namespace.
package snapshot

// TimeFormat is the layout used for last_updated and generated_at
// timestamps in persisted documents.
const TimeFormat = "2006-01-02T15:04:05Z"

// Source namespaces. Each namespace is a directory of dated documents under
// the raw data root.
const (
	NamespaceGDP          = "gdp"
	NamespaceOil          = "oil"
	NamespaceAgriculture  = "agriculture"
	NamespaceMinerals     = "minerals"
	NamespaceGoldReserves = "gold_reserves"
)

// ValueEntry is the per-country record emitted by single-value sources.
type ValueEntry struct {
	Value    float64  `json:"value"`
	Previous *float64 `json:"previous,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Year     int      `json:"year,omitempty"`
	Month    *int     `json:"month,omitempty"`
	LagNote  string   `json:"lag_note,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// CategoryEntry is the per-country record emitted by multi-commodity sources.
type CategoryEntry struct {
	Total      float64            `json:"total,omitempty"`
	Unit       string             `json:"unit,omitempty"`
	ByCategory map[string]float64 `json:"by_category,omitempty"`
	Year       int                `json:"year,omitempty"`
	LagNote    string             `json:"lag_note,omitempty"`
}

// GDPDoc is the intermediate snapshot produced by the World Bank GDP source.
type GDPDoc struct {
	LastUpdated string                `json:"last_updated"`
	Unit        string                `json:"unit"`
	Data        map[string]ValueEntry `json:"data"`
}

// OilDoc is the intermediate snapshot produced by the oil production source.
type OilDoc struct {
	LastUpdated string                `json:"last_updated"`
	Unit        string                `json:"unit"`
	Source      string                `json:"source,omitempty"`
	Data        map[string]ValueEntry `json:"data"`
	LatestYear  int                   `json:"latest_year,omitempty"`
}

// AgricultureDoc is the intermediate snapshot produced by the grain
// production source.
type AgricultureDoc struct {
	LastUpdated string                   `json:"last_updated"`
	Unit        string                   `json:"unit"`
	Source      string                   `json:"source,omitempty"`
	Data        map[string]CategoryEntry `json:"data"`
	LatestYear  int                      `json:"latest_year,omitempty"`
}

// MineralsGroup holds one commodity family inside a minerals document.
type MineralsGroup struct {
	Unit   string                   `json:"unit"`
	Source string                   `json:"source,omitempty"`
	Year   int                      `json:"year,omitempty"`
	Data   map[string]CategoryEntry `json:"data"`
}

// GoldGroup holds the gold production sub-document inside a minerals
// document. Gold is tracked separately because it may come from a fallback
// origin when the USGS workbook is unavailable.
type GoldGroup struct {
	Unit   string                `json:"unit"`
	Source string                `json:"source,omitempty"`
	Year   int                   `json:"year,omitempty"`
	Data   map[string]ValueEntry `json:"data"`
}

// MineralsDoc is the intermediate snapshot produced by the minerals source.
type MineralsDoc struct {
	LastUpdated string        `json:"last_updated"`
	Source      string        `json:"source,omitempty"`
	Nonferrous  MineralsGroup `json:"nonferrous"`
	Gold        GoldGroup     `json:"gold"`
}

// GoldReservesDoc is the intermediate snapshot produced by the central-bank
// gold reserves source.
type GoldReservesDoc struct {
	LastUpdated string                `json:"last_updated"`
	Unit        string                `json:"unit"`
	Source      string                `json:"source,omitempty"`
	Data        map[string]ValueEntry `json:"data"`
	LatestYear  int                   `json:"latest_year,omitempty"`
	LatestMonth string                `json:"latest_month,omitempty"`
	URL         string                `json:"url,omitempty"`
}
