package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/freshness"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

// excludedAggregates are World Bank ISO3-style codes that denote regions and
// income groups rather than countries.
var excludedAggregates = map[string]struct{}{
	"AFE": {}, "AFW": {}, "ARB": {}, "CSS": {}, "CEB": {}, "EAP": {},
	"EAR": {}, "EAS": {}, "ECA": {}, "ECS": {}, "EMU": {}, "EUU": {},
	"FCS": {}, "HIC": {}, "HPC": {}, "IBD": {}, "IBT": {}, "IDA": {},
	"IDB": {}, "IDX": {}, "INX": {}, "LAC": {}, "LCN": {}, "LDC": {},
	"LIC": {}, "LMC": {}, "LMY": {}, "LTE": {}, "MEA": {}, "MIC": {},
	"MNA": {}, "NAC": {}, "OED": {}, "OSS": {}, "PRE": {}, "PSS": {},
	"PST": {}, "SAS": {}, "SSA": {}, "SSF": {}, "SST": {}, "TEA": {},
	"TEC": {}, "TLA": {}, "TMN": {}, "TSA": {}, "TSS": {}, "UMC": {},
	"WLD": {},
}

const gdpPerPage = 300

// GDP crawls the World Bank GDP indicator (current USD).
type GDP struct {
	cfg    config.GDPSourceConfig
	client *http.Client
	store  *snapshot.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewGDP builds the GDP source.
func NewGDP(cfg config.GDPSourceConfig, client *http.Client, store *snapshot.Store, clk clock.Clock, logger *zap.Logger) *GDP {
	return &GDP{cfg: cfg, client: client, store: store, clock: clk, logger: logger}
}

// Name implements Source.
func (s *GDP) Name() string { return snapshot.NamespaceGDP }

// Crawl fetches every page of the indicator, keeps the latest year per
// country and persists a monthly snapshot.
func (s *GDP) Crawl(ctx context.Context) error {
	records, err := s.fetchAll(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	doc := buildGDPDoc(records, now)
	path, err := s.store.Write(snapshot.NamespaceGDP, snapshot.CadenceMonthly, now, doc)
	if err != nil {
		return fmt.Errorf("persist gdp snapshot: %w", err)
	}
	s.logger.Info("gdp snapshot written",
		zap.String("path", path),
		zap.Int("countries", len(doc.Data)),
	)
	return nil
}

type wbRecord struct {
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

type wbMeta struct {
	Pages int `json:"pages"`
}

func (s *GDP) fetchAll(ctx context.Context) ([]wbRecord, error) {
	var all []wbRecord
	for page := 1; ; page++ {
		meta, records, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if records == nil {
			break
		}
		all = append(all, records...)
		if meta.Pages <= 0 || page >= meta.Pages {
			break
		}
	}
	return all, nil
}

func (s *GDP) fetchPage(ctx context.Context, page int) (wbMeta, []wbRecord, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("per_page", strconv.Itoa(gdpPerPage))
	query.Set("date", s.cfg.DateRange)
	query.Set("page", strconv.Itoa(page))

	body, err := fetch(ctx, s.client, s.cfg.URL+"?"+query.Encode(), "")
	if err != nil {
		return wbMeta{}, nil, err
	}

	// The API returns a two element array: [meta, records].
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return wbMeta{}, nil, fmt.Errorf("%w: worldbank response: %v", snapshot.ErrParse, err)
	}
	if len(payload) < 2 {
		return wbMeta{}, nil, nil
	}
	var meta wbMeta
	if err := json.Unmarshal(payload[0], &meta); err != nil {
		return wbMeta{}, nil, fmt.Errorf("%w: worldbank meta: %v", snapshot.ErrParse, err)
	}
	var records []wbRecord
	if err := json.Unmarshal(payload[1], &records); err != nil {
		return wbMeta{}, nil, fmt.Errorf("%w: worldbank records: %v", snapshot.ErrParse, err)
	}
	if records == nil {
		records = []wbRecord{}
	}
	return meta, records, nil
}

// buildGDPDoc keeps the latest year per country, skipping aggregates and
// null values.
func buildGDPDoc(records []wbRecord, now time.Time) snapshot.GDPDoc {
	latest := make(map[string]snapshot.ValueEntry)
	for _, record := range records {
		if record.Value == nil || record.CountryISO3 == "" {
			continue
		}
		if _, excluded := excludedAggregates[record.CountryISO3]; excluded {
			continue
		}
		year, err := strconv.Atoi(record.Date)
		if err != nil {
			continue
		}
		if existing, ok := latest[record.CountryISO3]; ok && year <= existing.Year {
			continue
		}
		latest[record.CountryISO3] = snapshot.ValueEntry{
			Value:   *record.Value,
			Unit:    "USD",
			Year:    year,
			LagNote: freshness.Evaluate(yearEnd(year), now, freshness.DefaultMaxLagDays),
		}
	}
	return snapshot.GDPDoc{
		LastUpdated: now.Format(snapshot.TimeFormat),
		Unit:        "USD",
		Data:        latest,
	}
}
