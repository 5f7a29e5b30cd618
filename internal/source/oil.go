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
	"time"

	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/freshness"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

const (
	oilUnit       = "桶/日"
	oilMaxLagDays = 60

	// OWID reports oil production in TWh per year; the merged dataset uses
	// barrels per day. 1 TWh = 1,000,000 MWh, one barrel of oil ≈ 1.7 MWh.
	mwhPerTWh     = 1_000_000
	mwhPerBarrel  = 1.7
	daysPerYear   = 365.0
	oilSourceNote = "OWID energy-data (oil_production, TWh -> bbl/day approx)"
)

// Oil crawls the OWID energy dataset for oil production.
type Oil struct {
	cfg    config.OilSourceConfig
	client *http.Client
	store  *snapshot.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewOil builds the oil source.
func NewOil(cfg config.OilSourceConfig, client *http.Client, store *snapshot.Store, clk clock.Clock, logger *zap.Logger) *Oil {
	return &Oil{cfg: cfg, client: client, store: store, clock: clk, logger: logger}
}

// Name implements Source.
func (s *Oil) Name() string { return snapshot.NamespaceOil }

// Crawl downloads the energy CSV, keeps the latest year per country and
// persists a monthly snapshot.
func (s *Oil) Crawl(ctx context.Context) error {
	body, err := fetch(ctx, s.client, s.cfg.URL, "")
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	doc, err := buildOilDoc(bytes.NewReader(body), now)
	if err != nil {
		return err
	}
	path, err := s.store.Write(snapshot.NamespaceOil, snapshot.CadenceMonthly, now, doc)
	if err != nil {
		return fmt.Errorf("persist oil snapshot: %w", err)
	}
	s.logger.Info("oil snapshot written",
		zap.String("path", path),
		zap.Int("countries", len(doc.Data)),
		zap.Int("latest_year", doc.LatestYear),
	)
	return nil
}

// buildOilDoc reads the OWID energy CSV and keeps, per 3-letter ISO code,
// the row with the most recent year that has an oil_production value.
func buildOilDoc(r io.Reader, now time.Time) (snapshot.OilDoc, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return snapshot.OilDoc{}, fmt.Errorf("%w: energy csv header: %v", snapshot.ErrParse, err)
	}
	isoIdx, yearIdx, prodIdx := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "iso_code":
			isoIdx = i
		case "year":
			yearIdx = i
		case "oil_production":
			prodIdx = i
		}
	}
	if isoIdx < 0 || yearIdx < 0 || prodIdx < 0 {
		return snapshot.OilDoc{}, fmt.Errorf("%w: energy csv missing iso_code/year/oil_production columns", snapshot.ErrParse)
	}

	type latestRow struct {
		year int
		twh  float64
	}
	latest := make(map[string]latestRow)
	maxYear := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return snapshot.OilDoc{}, fmt.Errorf("%w: energy csv row: %v", snapshot.ErrParse, err)
		}
		if len(row) <= isoIdx || len(row) <= yearIdx || len(row) <= prodIdx {
			continue
		}
		iso := strings.ToUpper(strings.TrimSpace(row[isoIdx]))
		if len(iso) != 3 {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[yearIdx]))
		if err != nil {
			continue
		}
		twh, err := strconv.ParseFloat(strings.TrimSpace(row[prodIdx]), 64)
		if err != nil {
			continue
		}
		if existing, ok := latest[iso]; ok && year <= existing.year {
			continue
		}
		latest[iso] = latestRow{year: year, twh: twh}
		if year > maxYear {
			maxYear = year
		}
	}

	data := make(map[string]snapshot.ValueEntry, len(latest))
	for iso, row := range latest {
		barrelsPerDay := (row.twh * mwhPerTWh) / mwhPerBarrel / daysPerYear
		data[iso] = snapshot.ValueEntry{
			Value:   barrelsPerDay,
			Unit:    oilUnit,
			Year:    row.year,
			LagNote: freshness.Evaluate(yearEnd(row.year), now, oilMaxLagDays),
		}
	}
	if maxYear == 0 {
		maxYear = now.Year() - 1
	}

	return snapshot.OilDoc{
		LastUpdated: now.Format(snapshot.TimeFormat),
		Unit:        oilUnit,
		Source:      oilSourceNote,
		Data:        data,
		LatestYear:  maxYear,
	}, nil
}
