package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotPanics(t, func() {
		ObserveCrawl("gdp", "ok", 2*time.Second)
		ObserveCrawl("oil", "error", time.Second)
		ObserveMerge("ok", 195, 50*time.Millisecond)
		ObserveMerge("error", 0, 10*time.Millisecond)
		ObserveHTTPRequest("GET", 200)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveCrawl("minerals", "ok", time.Second)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "worldstat_crawl_runs_total")
}
