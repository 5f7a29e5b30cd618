package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

// fixedClock pins Now for deterministic freshness notes.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newCSVServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

type stubSource struct{ name string }

func (s stubSource) Name() string { return s.name }

func (s stubSource) Crawl(_ context.Context) error { return nil }

func TestRegistryPreservesOrder(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(stubSource{"gdp"}, stubSource{"oil"}, stubSource{"minerals"})

	require.Equal(t, []string{"gdp", "oil", "minerals"}, registry.Names())

	all := registry.All()
	require.Len(t, all, 3)
	require.Equal(t, "oil", all[1].Name())

	s, ok := registry.Get("minerals")
	require.True(t, ok)
	require.Equal(t, "minerals", s.Name())

	_, ok = registry.Get("unknown")
	require.False(t, ok)
}

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	body, err := fetch(context.Background(), server.Client(), server.URL, "worldstat-test")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), body)
	require.Equal(t, "worldstat-test", gotAgent)
}

func TestFetchNon2xxIsErrFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fetch(context.Background(), server.Client(), server.URL, "")
	require.ErrorIs(t, err, ErrFetch)
}
