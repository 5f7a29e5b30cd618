package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/freshness"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

const (
	grainUnit       = "吨/年"
	grainMaxLagDays = 365
	grainSourceNote = "Our World in Data grapher (wheat/rice/maize production)"
	grainCodeColumn = "Code"
	grainYearColumn = "Year"
)

// Agriculture crawls the OWID grapher exports for the three staple grains
// and folds them into one by-category snapshot.
type Agriculture struct {
	cfg    config.AgricultureSourceConfig
	client *http.Client
	store  *snapshot.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewAgriculture builds the agriculture source.
func NewAgriculture(cfg config.AgricultureSourceConfig, client *http.Client, store *snapshot.Store, clk clock.Clock, logger *zap.Logger) *Agriculture {
	return &Agriculture{cfg: cfg, client: client, store: store, clock: clk, logger: logger}
}

// Name implements Source.
func (s *Agriculture) Name() string { return snapshot.NamespaceAgriculture }

// categories in a fixed order so the snapshot is reproducible.
func (s *Agriculture) categories() []struct{ name, url string } {
	return []struct{ name, url string }{
		{"wheat", s.cfg.WheatURL},
		{"rice", s.cfg.RiceURL},
		{"corn", s.cfg.MaizeURL},
	}
}

// Crawl fetches each grain CSV, keeps the latest year per country per grain
// and persists a yearly snapshot with per-country totals.
func (s *Agriculture) Crawl(ctx context.Context) error {
	now := s.clock.Now().UTC()
	data := make(map[string]*snapshot.CategoryEntry)
	latestYear := 0

	for _, category := range s.categories() {
		body, err := fetch(ctx, s.client, category.url, "")
		if err != nil {
			return fmt.Errorf("category %s: %w", category.name, err)
		}
		rows, err := parseGrapherCSV(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("category %s: %w", category.name, err)
		}
		if latestYear == 0 {
			for _, row := range rows {
				if row.year > latestYear {
					latestYear = row.year
				}
			}
		}
		for _, row := range rows {
			entry, ok := data[row.iso]
			if !ok {
				entry = &snapshot.CategoryEntry{
					Unit:       grainUnit,
					ByCategory: map[string]float64{},
					Year:       row.year,
				}
				data[row.iso] = entry
			}
			entry.ByCategory[category.name] = row.value
			if row.year > entry.Year {
				entry.Year = row.year
			}
		}
	}

	doc := snapshot.AgricultureDoc{
		LastUpdated: now.Format(snapshot.TimeFormat),
		Unit:        grainUnit,
		Source:      grainSourceNote,
		Data:        make(map[string]snapshot.CategoryEntry, len(data)),
		LatestYear:  latestYear,
	}
	for iso, entry := range data {
		total := 0.0
		for _, v := range entry.ByCategory {
			total += v
		}
		entry.Total = total
		entry.LagNote = freshness.Evaluate(yearEnd(entry.Year), now, grainMaxLagDays)
		doc.Data[iso] = *entry
	}

	path, err := s.store.Write(snapshot.NamespaceAgriculture, snapshot.CadenceYearly, now, doc)
	if err != nil {
		return fmt.Errorf("persist agriculture snapshot: %w", err)
	}
	s.logger.Info("agriculture snapshot written",
		zap.String("path", path),
		zap.Int("countries", len(doc.Data)),
		zap.Int("latest_year", doc.LatestYear),
	)
	return nil
}

type grapherRow struct {
	iso   string
	year  int
	value float64
}

// parseGrapherCSV reads an OWID grapher export (Entity, Code, Year, value)
// and keeps the latest year per 3-letter ISO code. The value column is the
// last column, whatever the grapher happens to call it.
func parseGrapherCSV(r io.Reader) ([]grapherRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: grapher csv header: %v", snapshot.ErrParse, err)
	}
	codeIdx, yearIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case grainCodeColumn:
			codeIdx = i
		case grainYearColumn:
			yearIdx = i
		}
	}
	valueIdx := len(header) - 1
	if codeIdx < 0 || yearIdx < 0 || valueIdx <= yearIdx {
		return nil, fmt.Errorf("%w: grapher csv missing Code/Year/value columns", snapshot.ErrParse)
	}

	latest := make(map[string]grapherRow)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: grapher csv row: %v", snapshot.ErrParse, err)
		}
		if len(row) <= valueIdx {
			continue
		}
		iso := strings.ToUpper(strings.TrimSpace(row[codeIdx]))
		if len(iso) != 3 {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[yearIdx]))
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[valueIdx]), 64)
		if err != nil {
			continue
		}
		if existing, ok := latest[iso]; ok && year <= existing.year {
			continue
		}
		latest[iso] = grapherRow{iso: iso, year: year, value: value}
	}

	rows := make([]grapherRow, 0, len(latest))
	for _, row := range latest {
		rows = append(rows, row)
	}
	return rows, nil
}
