package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

func float64Ptr(v float64) *float64 { return &v }

func TestBuildGDPDocKeepsLatestYear(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []wbRecord{
		{CountryISO3: "USA", Date: "2023", Value: float64Ptr(27e12)},
		{CountryISO3: "USA", Date: "2024", Value: float64Ptr(28e12)},
		{CountryISO3: "USA", Date: "2022", Value: float64Ptr(26e12)},
		{CountryISO3: "CHN", Date: "2024", Value: float64Ptr(18e12)},
	}

	doc := buildGDPDoc(records, now)

	require.Len(t, doc.Data, 2)
	require.Equal(t, 28e12, doc.Data["USA"].Value)
	require.Equal(t, 2024, doc.Data["USA"].Year)
	require.Equal(t, "USD", doc.Data["USA"].Unit)
	require.Equal(t, now.Format(snapshot.TimeFormat), doc.LastUpdated)
}

func TestBuildGDPDocSkipsAggregatesAndNulls(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []wbRecord{
		{CountryISO3: "WLD", Date: "2024", Value: float64Ptr(100e12)},
		{CountryISO3: "EUU", Date: "2024", Value: float64Ptr(20e12)},
		{CountryISO3: "FRA", Date: "2024", Value: nil},
		{CountryISO3: "", Date: "2024", Value: float64Ptr(1e12)},
		{CountryISO3: "DEU", Date: "2024", Value: float64Ptr(4.5e12)},
	}

	doc := buildGDPDoc(records, now)

	require.Len(t, doc.Data, 1)
	require.Contains(t, doc.Data, "DEU")
}

func TestBuildGDPDocFlagsLaggedYears(t *testing.T) {
	t.Parallel()

	// 2023 year-end is well past the 30-day window by mid-2026.
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	doc := buildGDPDoc([]wbRecord{
		{CountryISO3: "JPN", Date: "2023", Value: float64Ptr(4e12)},
	}, now)

	require.Equal(t, "lagged; release: 2023-12", doc.Data["JPN"].LagNote)
}

func TestGDPCrawlPaginatesAndPersists(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"1": `[{"pages":2},[{"countryiso3code":"USA","date":"2024","value":28000000000000}]]`,
		"2": `[{"pages":2},[{"countryiso3code":"CHN","date":"2024","value":18000000000000}]]`,
	}
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requested = append(requested, page)
		fmt.Fprint(w, pages[page])
	}))
	defer server.Close()

	store := newTestStore(t)
	clk := fixedClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	src := NewGDP(config.GDPSourceConfig{URL: server.URL, DateRange: "2020:2024"}, server.Client(), store, clk, zap.NewNop())

	require.Equal(t, snapshot.NamespaceGDP, src.Name())
	require.NoError(t, src.Crawl(context.Background()))
	require.Equal(t, []string{"1", "2"}, requested)

	var doc snapshot.GDPDoc
	found, err := store.ReadLatest(snapshot.NamespaceGDP, &doc)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, doc.Data, 2)
	require.Equal(t, 18e12, doc.Data["CHN"].Value)
}

func TestGDPCrawlPropagatesFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := newTestStore(t)
	clk := fixedClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	src := NewGDP(config.GDPSourceConfig{URL: server.URL, DateRange: "2020:2024"}, server.Client(), store, clk, zap.NewNop())

	err := src.Crawl(context.Background())
	require.ErrorIs(t, err, ErrFetch)

	var doc snapshot.GDPDoc
	found, readErr := store.ReadLatest(snapshot.NamespaceGDP, &doc)
	require.NoError(t, readErr)
	require.False(t, found)
}
