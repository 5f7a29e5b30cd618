package source

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/countries"
	"github.com/atlasforge/worldstat-crawler/internal/freshness"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

const (
	goldReservesUnit       = "吨"
	goldReservesMaxLagDays = 90
	goldReservesSourceNote = "Trading Economics central bank gold reserves"
)

var referenceMonthPattern = regexp.MustCompile(`(\d{4})-(\d{2})`)

// reserveSlugOverrides maps listing URL slugs straight to alpha-3 codes
// where the slug spelling defeats the generic name lookup.
var reserveSlugOverrides = map[string]string{
	"euro-area":              "EUU",
	"czech-republic":         "CZE",
	"south-korea":            "KOR",
	"north-korea":            "PRK",
	"macedonia":              "MKD",
	"bosnia-and-herzegovina": "BIH",
}

// GoldReserves crawls the central bank gold reserves listing. Reserves are a
// stock, not a production rate, so the document is kept in its own namespace
// and is not folded into the merged country records.
type GoldReserves struct {
	cfg       config.GoldReservesSourceConfig
	userAgent string
	timeout   time.Duration
	store     *snapshot.Store
	clock     clock.Clock
	logger    *zap.Logger
}

// NewGoldReserves builds the gold reserves source.
func NewGoldReserves(cfg config.GoldReservesSourceConfig, httpCfg config.HTTPConfig, store *snapshot.Store, clk clock.Clock, logger *zap.Logger) *GoldReserves {
	return &GoldReserves{
		cfg:       cfg,
		userAgent: httpCfg.UserAgent,
		timeout:   time.Duration(httpCfg.TimeoutSeconds) * time.Second,
		store:     store,
		clock:     clk,
		logger:    logger,
	}
}

// Name implements Source.
func (s *GoldReserves) Name() string { return snapshot.NamespaceGoldReserves }

// Crawl fetches and persists the reserves listing.
func (s *GoldReserves) Crawl(ctx context.Context) error {
	now := s.clock.Now().UTC()

	var (
		data        map[string]snapshot.ValueEntry
		latestMonth string
	)

	collector := colly.NewCollector(colly.Async(false))
	if s.userAgent != "" {
		collector.UserAgent = s.userAgent
	}
	collector.SetRequestTimeout(s.timeout)

	var fetchErr error
	collector.OnHTML("table.table-heatmap", func(e *colly.HTMLElement) {
		data, latestMonth = parseReservesTable(e.DOM, now)
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("%w: %s: status %d: %v", ErrFetch, s.cfg.URL, status, err)
	})

	if err := s.visit(ctx, collector); err != nil {
		return err
	}
	if fetchErr != nil {
		return fetchErr
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s: reserves table not found", snapshot.ErrParse, s.cfg.URL)
	}

	doc := snapshot.GoldReservesDoc{
		LastUpdated: now.Format(snapshot.TimeFormat),
		Unit:        goldReservesUnit,
		Source:      goldReservesSourceNote,
		Data:        data,
		LatestMonth: latestMonth,
		URL:         s.cfg.URL,
	}
	path, err := s.store.Write(snapshot.NamespaceGoldReserves, snapshot.CadenceMonthly, now, doc)
	if err != nil {
		return fmt.Errorf("persist gold reserves snapshot: %w", err)
	}
	s.logger.Info("gold reserves snapshot written",
		zap.String("path", path),
		zap.Int("countries", len(data)),
		zap.String("latest_month", latestMonth),
	)
	return nil
}

func (s *GoldReserves) visit(ctx context.Context, collector *colly.Collector) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(s.cfg.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("gold reserves fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrFetch, s.cfg.URL, err)
		}
		return nil
	}
}

// parseReservesTable reads the heatmap listing. Row layout: country link,
// latest value, previous value, reference month, unit.
func parseReservesTable(table *goquery.Selection, now time.Time) (map[string]snapshot.ValueEntry, string) {
	data := make(map[string]snapshot.ValueEntry)
	latestMonth := ""

	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}

		name := reserveCountryName(cells.Eq(0))
		if name == "" {
			return
		}
		iso, ok := countries.Resolve(name)
		if !ok {
			return
		}

		value, err := parseNumber(cells.Eq(1).Text())
		if err != nil {
			return
		}

		entry := snapshot.ValueEntry{
			Value: value,
			Unit:  goldReservesUnit,
		}
		if previous, err := parseNumber(cells.Eq(2).Text()); err == nil {
			entry.Previous = &previous
		}
		if cells.Length() >= 5 {
			if unit := strings.TrimSpace(cells.Eq(4).Text()); unit != "" {
				entry.Unit = unit
			}
		}

		if match := referenceMonthPattern.FindStringSubmatch(tr.Text()); match != nil {
			year, _ := strconv.Atoi(match[1])
			month, _ := strconv.Atoi(match[2])
			entry.Year = year
			entry.Month = &month
			// Day zero of the next month is the reference month's last day.
			ref := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
			entry.LagNote = freshness.Evaluate(ref, now, goldReservesMaxLagDays)
			if stamp := match[0]; stamp > latestMonth {
				latestMonth = stamp
			}
		}

		data[iso] = entry
	})

	return data, latestMonth
}

// reserveCountryName prefers the link slug over the anchor text because the
// listing localizes the visible name.
func reserveCountryName(cell *goquery.Selection) string {
	href, _ := cell.Find("a").Attr("href")
	if href != "" {
		// Row links look like /<country-slug>/gold-reserves.
		parts := strings.Split(strings.Trim(href, "/"), "/")
		slug := parts[0]
		if override, ok := reserveSlugOverrides[slug]; ok {
			return override
		}
		if slug != "" {
			return strings.ReplaceAll(slug, "-", " ")
		}
	}
	return strings.TrimSpace(cell.Text())
}
