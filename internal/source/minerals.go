package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/countries"
	"github.com/atlasforge/worldstat-crawler/internal/freshness"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

const (
	nonferrousUnit     = "吨/年"
	goldUnit           = "公斤/年"
	mineralsMaxLagDays = 365
	kgPerTonne         = 1000.0
)

// commodityKeywords selects workbook sheets per commodity family. Sheet
// names vary release to release, so matching is by substring.
var commodityKeywords = map[string][]string{
	"aluminum": {"aluminum", "bauxite", "alumina"},
	"copper":   {"copper"},
	"nickel":   {"nickel"},
	"gold":     {"gold"},
}

// commodityOrder fixes iteration order over commodityKeywords.
var commodityOrder = []string{"aluminum", "copper", "nickel", "gold"}

var goldYearPattern = regexp.MustCompile(`(?i)gold production\D*(\d{4})`)

// Minerals crawls the USGS mineral commodity summaries workbook, with a
// Wikipedia table fallback for gold when the workbook is unreachable or has
// no usable gold sheet.
type Minerals struct {
	cfg    config.MineralsSourceConfig
	client *http.Client
	store  *snapshot.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewMinerals builds the minerals source.
func NewMinerals(cfg config.MineralsSourceConfig, client *http.Client, store *snapshot.Store, clk clock.Clock, logger *zap.Logger) *Minerals {
	return &Minerals{cfg: cfg, client: client, store: store, clock: clk, logger: logger}
}

// Name implements Source.
func (s *Minerals) Name() string { return snapshot.NamespaceMinerals }

// Crawl builds the minerals snapshot. A blocked or malformed workbook does
// not fail the crawl outright: the gold fallback still runs and an empty
// nonferrous section is persisted so the merge sees a fresh document.
func (s *Minerals) Crawl(ctx context.Context) error {
	now := s.clock.Now().UTC()

	doc := snapshot.MineralsDoc{
		LastUpdated: now.Format(snapshot.TimeFormat),
		Nonferrous:  snapshot.MineralsGroup{Unit: nonferrousUnit, Data: map[string]snapshot.CategoryEntry{}},
		Gold:        snapshot.GoldGroup{Unit: goldUnit, Data: map[string]snapshot.ValueEntry{}},
	}

	workbook, err := s.fetchWorkbook(ctx)
	if err != nil {
		s.logger.Warn("usgs workbook unavailable, using gold fallback only", zap.Error(err))
		doc.Source = "USGS MCS unavailable"
	} else {
		nonferrous, gold := extractWorkbook(workbook, now)
		doc.Nonferrous.Data = nonferrous
		doc.Nonferrous.Source = "USGS MCS (xlsx)"
		doc.Gold.Data = gold
	}

	if len(doc.Gold.Data) == 0 {
		goldData, year, note, err := s.crawlGoldFallback(ctx, now)
		if err != nil {
			s.logger.Warn("gold fallback failed", zap.Error(err))
		} else if len(goldData) > 0 {
			doc.Gold.Data = goldData
			doc.Gold.Year = year
			doc.Gold.Source = note
		}
	} else {
		doc.Gold.Source = "USGS MCS (xlsx)"
	}

	if len(doc.Nonferrous.Data) == 0 && len(doc.Gold.Data) == 0 {
		return errors.New("minerals crawl produced no data")
	}

	path, err := s.store.Write(snapshot.NamespaceMinerals, snapshot.CadenceYearly, now, doc)
	if err != nil {
		return fmt.Errorf("persist minerals snapshot: %w", err)
	}
	s.logger.Info("minerals snapshot written",
		zap.String("path", path),
		zap.Int("nonferrous_countries", len(doc.Nonferrous.Data)),
		zap.Int("gold_countries", len(doc.Gold.Data)),
	)
	return nil
}

func (s *Minerals) fetchWorkbook(ctx context.Context) (*xlsx.File, error) {
	body, err := fetch(ctx, s.client, s.cfg.WorkbookURL, "")
	if err != nil {
		return nil, err
	}
	file, err := xlsx.OpenBinary(body)
	if err != nil {
		return nil, fmt.Errorf("%w: usgs workbook: %v", snapshot.ErrParse, err)
	}
	return file, nil
}

// extractWorkbook walks the commodity sheets and splits results into the
// nonferrous by-category map and the gold map (tonnes converted to kg).
func extractWorkbook(file *xlsx.File, now time.Time) (map[string]snapshot.CategoryEntry, map[string]snapshot.ValueEntry) {
	nonferrous := make(map[string]snapshot.CategoryEntry)
	gold := make(map[string]snapshot.ValueEntry)
	fallbackYear := now.Year() - 1

	for _, commodity := range commodityOrder {
		sheet := findSheet(file, commodityKeywords[commodity])
		if sheet == nil {
			continue
		}
		values := extractSheet(sheet, fallbackYear)
		for iso, cell := range values {
			lagNote := freshness.Evaluate(yearEnd(cell.year), now, mineralsMaxLagDays)
			if commodity == "gold" {
				gold[iso] = snapshot.ValueEntry{
					Value:   cell.value * kgPerTonne,
					Unit:    goldUnit,
					Year:    cell.year,
					LagNote: lagNote,
				}
				continue
			}
			entry, ok := nonferrous[iso]
			if !ok {
				entry = snapshot.CategoryEntry{
					Unit:       nonferrousUnit,
					ByCategory: map[string]float64{},
					Year:       cell.year,
				}
			}
			entry.ByCategory[commodity] = cell.value
			if cell.year > entry.Year {
				entry.Year = cell.year
			}
			entry.LagNote = lagNote
			nonferrous[iso] = entry
		}
	}
	for iso, entry := range nonferrous {
		total := 0.0
		for _, v := range entry.ByCategory {
			total += v
		}
		entry.Total = total
		nonferrous[iso] = entry
	}
	return nonferrous, gold
}

func findSheet(file *xlsx.File, keywords []string) *xlsx.Sheet {
	for _, keyword := range keywords {
		for _, sheet := range file.Sheets {
			if strings.Contains(strings.ToLower(sheet.Name), keyword) {
				return sheet
			}
		}
	}
	return nil
}

type sheetCell struct {
	value float64
	year  int
}

// extractSheet locates the country column and the most recent year column
// in a commodity sheet and returns one value per resolvable country.
func extractSheet(sheet *xlsx.Sheet, fallbackYear int) map[string]sheetCell {
	if len(sheet.Rows) < 2 {
		return nil
	}
	header := sheet.Rows[0]

	countryIdx := -1
	yearIdx, year := -1, 0
	for i, cell := range header.Cells {
		text := strings.TrimSpace(cell.String())
		if countryIdx < 0 && strings.Contains(strings.ToLower(text), "country") {
			countryIdx = i
			continue
		}
		if candidate, err := strconv.Atoi(text); err == nil && candidate > year {
			yearIdx, year = i, candidate
		}
	}
	if countryIdx < 0 || yearIdx < 0 {
		return nil
	}
	if year == 0 {
		year = fallbackYear
	}

	data := make(map[string]sheetCell)
	for _, row := range sheet.Rows[1:] {
		if len(row.Cells) <= countryIdx || len(row.Cells) <= yearIdx {
			continue
		}
		name := strings.TrimSpace(row.Cells[countryIdx].String())
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "world" || lower == "total" {
			continue
		}
		iso, ok := countries.Resolve(name)
		if !ok {
			continue
		}
		value, err := parseNumber(row.Cells[yearIdx].String())
		if err != nil {
			continue
		}
		data[iso] = sheetCell{value: value, year: year}
	}
	return data
}

// crawlGoldFallback scrapes the Wikipedia mineral production lists for the
// gold table; values are reported in tonnes and converted to kg.
func (s *Minerals) crawlGoldFallback(ctx context.Context, now time.Time) (map[string]snapshot.ValueEntry, int, string, error) {
	body, err := fetch(ctx, s.client, s.cfg.GoldFallbackURL, "")
	if err != nil {
		return nil, 0, "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, "", fmt.Errorf("%w: wikipedia gold page: %v", snapshot.ErrParse, err)
	}

	year := detectGoldYear(string(body), now)
	data := parseGoldTable(doc, year, now)
	if len(data) == 0 {
		return nil, year, "", errors.New("wikipedia gold table not found")
	}
	return data, year, "Wikipedia list of countries by gold production", nil
}

func detectGoldYear(html string, now time.Time) int {
	if match := goldYearPattern.FindStringSubmatch(html); match != nil {
		if year, err := strconv.Atoi(match[1]); err == nil {
			return year
		}
	}
	return now.Year() - 1
}

// parseGoldTable picks the first table whose header mentions both a country
// column and a gold/production column.
func parseGoldTable(doc *goquery.Document, year int, now time.Time) map[string]snapshot.ValueEntry {
	data := make(map[string]snapshot.ValueEntry)

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		countryIdx, productionIdx := -1, -1
		table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(th.Text()))
			if countryIdx < 0 && strings.Contains(text, "country") {
				countryIdx = i
			}
			if strings.Contains(text, "production") && !strings.Contains(text, "reserve") {
				if strings.Contains(text, "gold") || productionIdx < 0 {
					productionIdx = i
				}
			}
		})
		if countryIdx < 0 || productionIdx < 0 {
			return true
		}

		table.Find("tr").Each(func(i int, tr *goquery.Selection) {
			if i == 0 {
				return
			}
			cells := tr.Find("td, th")
			if cells.Length() <= countryIdx || cells.Length() <= productionIdx {
				return
			}
			name := strings.TrimSpace(cells.Eq(countryIdx).Text())
			if name == "" {
				return
			}
			lower := strings.ToLower(name)
			if lower == "world" || lower == "other countries" {
				return
			}
			iso, ok := countries.Resolve(name)
			if !ok {
				return
			}
			tonnes, err := parseNumber(cells.Eq(productionIdx).Text())
			if err != nil {
				return
			}
			data[iso] = snapshot.ValueEntry{
				Value:   tonnes * kgPerTonne,
				Unit:    goldUnit,
				Year:    year,
				LagNote: freshness.Evaluate(yearEnd(year), now, mineralsMaxLagDays),
			}
		})
		return len(data) == 0
	})
	return data
}

// parseNumber strips thousands separators and placeholder markers.
func parseNumber(text string) (float64, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if raw == "" || raw == "-" || strings.EqualFold(raw, "n/a") {
		return 0, errors.New("no value")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", text, err)
	}
	return value, nil
}
