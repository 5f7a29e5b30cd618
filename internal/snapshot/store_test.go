package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCadenceFileName(t *testing.T) {
	t.Parallel()

	run := time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-03.json", CadenceMonthly.FileName(run))
	require.Equal(t, "2024.json", CadenceYearly.FileName(run))
}

func TestStore_WriteThenReadLatest(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	doc := GDPDoc{
		LastUpdated: "2024-03-01T00:00:00Z",
		Unit:        "USD",
		Data: map[string]ValueEntry{
			"USA": {Value: 27e12, Year: 2023},
		},
	}
	path, err := store.Write(NamespaceGDP, CadenceMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc)
	require.NoError(t, err)
	require.Equal(t, "2024-03.json", filepath.Base(path))

	var got GDPDoc
	found, err := store.ReadLatest(NamespaceGDP, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, doc, got)
}

func TestStore_ReadLatestPicksNewestByModTime(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	// Lexically newer file written first; a later rewrite of the older
	// period must win because selection is by modification time.
	_, err = store.Write(NamespaceOil, CadenceMonthly, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		OilDoc{Unit: "桶/日", Data: map[string]ValueEntry{"SAU": {Value: 1}}})
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	first := filepath.Join(store.baseDir, NamespaceOil, "2024-05.json")
	require.NoError(t, os.Chtimes(first, old, old))

	_, err = store.Write(NamespaceOil, CadenceMonthly, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		OilDoc{Unit: "桶/日", Data: map[string]ValueEntry{"SAU": {Value: 2}}})
	require.NoError(t, err)

	var got OilDoc
	found, err := store.ReadLatest(NamespaceOil, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(2), got.Data["SAU"].Value)
}

func TestStore_ReadLatestEmptyNamespace(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var got GDPDoc
	found, err := store.ReadLatest("never-crawled", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_ReadExactMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	var got GDPDoc
	err = store.ReadExact(path, &got)
	require.ErrorIs(t, err, ErrParse)
}

func TestWriteFileAtomic_NoPartialContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, WriteFileAtomic(path, map[string]string{"a": "1"}))
	require.NoError(t, WriteFileAtomic(path, map[string]string{"a": "2"}))

	var got map[string]string
	require.NoError(t, ReadFile(path, &got))
	require.Equal(t, "2", got["a"])

	// Only the destination file remains; temp files are cleaned up.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
