package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

func TestParseGrapherCSVKeepsLatestYearPerCountry(t *testing.T) {
	t.Parallel()

	csvBody := `Entity,Code,Year,Wheat production (tonnes)
China,CHN,2022,137000000
China,CHN,2023,136600000
World,OWID_WRL,2023,799000000
India,IND,2023,110600000
France,,2023,35000000
`
	rows, err := parseGrapherCSV(strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byISO := make(map[string]grapherRow, len(rows))
	for _, row := range rows {
		byISO[row.iso] = row
	}
	require.Equal(t, 2023, byISO["CHN"].year)
	require.Equal(t, 136600000.0, byISO["CHN"].value)
	require.Contains(t, byISO, "IND")
}

func TestParseGrapherCSVMissingColumns(t *testing.T) {
	t.Parallel()

	_, err := parseGrapherCSV(strings.NewReader("Entity,Year\nChina,2023\n"))
	require.ErrorIs(t, err, snapshot.ErrParse)
}

func TestAgricultureCrawlFoldsGrainsIntoCategories(t *testing.T) {
	t.Parallel()

	serve := func(body string) *httptest.Server {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(server.Close)
		return server
	}

	wheat := serve("Entity,Code,Year,Production\nChina,CHN,2023,136600000\nIndia,IND,2023,110600000\n")
	rice := serve("Entity,Code,Year,Production\nChina,CHN,2023,208500000\n")
	maize := serve("Entity,Code,Year,Production\nChina,CHN,2023,288800000\nIndia,IND,2022,33700000\n")

	store := newTestStore(t)
	clk := fixedClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	cfg := config.AgricultureSourceConfig{WheatURL: wheat.URL, RiceURL: rice.URL, MaizeURL: maize.URL}
	src := NewAgriculture(cfg, http.DefaultClient, store, clk, zap.NewNop())

	require.Equal(t, snapshot.NamespaceAgriculture, src.Name())
	require.NoError(t, src.Crawl(context.Background()))

	var doc snapshot.AgricultureDoc
	found, err := store.ReadLatest(snapshot.NamespaceAgriculture, &doc)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2023, doc.LatestYear)

	chn := doc.Data["CHN"]
	require.Equal(t, map[string]float64{"wheat": 136600000, "rice": 208500000, "corn": 288800000}, chn.ByCategory)
	require.Equal(t, 136600000.0+208500000+288800000, chn.Total)
	require.Equal(t, grainUnit, chn.Unit)

	// India has no rice row and an older maize year; the total covers what
	// exists and the year is the newest across grains.
	ind := doc.Data["IND"]
	require.Equal(t, map[string]float64{"wheat": 110600000, "corn": 33700000}, ind.ByCategory)
	require.Equal(t, 2023, ind.Year)
}

func TestAgricultureCrawlFailsWhenOneGrainUnreachable(t *testing.T) {
	t.Parallel()

	wheat := newCSVServer(t, "Entity,Code,Year,Production\nChina,CHN,2023,1\n")
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	store := newTestStore(t)
	clk := fixedClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	cfg := config.AgricultureSourceConfig{WheatURL: wheat.URL, RiceURL: broken.URL, MaizeURL: wheat.URL}
	src := NewAgriculture(cfg, http.DefaultClient, store, clk, zap.NewNop())

	err := src.Crawl(context.Background())
	require.ErrorIs(t, err, ErrFetch)
	require.ErrorContains(t, err, "rice")

	var doc snapshot.AgricultureDoc
	found, readErr := store.ReadLatest(snapshot.NamespaceAgriculture, &doc)
	require.NoError(t, readErr)
	require.False(t, found)
}
