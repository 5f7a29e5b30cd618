package merge

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

// DefaultVersion is assigned when no previous merged snapshot carries one.
const DefaultVersion = "0.1"

// Default units applied when neither the per-country entry nor its source
// document supplies one.
const (
	defaultGDPUnit        = "USD"
	defaultOilUnit        = "桶/日"
	defaultGrainUnit      = "吨/年"
	defaultNonferrousUnit = "吨/年"
	defaultGoldUnit       = "公斤/年"
)

// Merger rebuilds the canonical merged snapshot from the previous merged
// snapshot plus the latest intermediate snapshot of every consumed source.
// MergeAll is serialized with a mutex: the canonical file has a single
// writer even when refreshes race.
type Merger struct {
	mu     sync.Mutex
	store  *snapshot.Store
	path   string
	clock  clock.Clock
	logger *zap.Logger
}

// New creates a Merger writing to the canonical merged snapshot at path.
func New(store *snapshot.Store, path string, clk clock.Clock, logger *zap.Logger) *Merger {
	return &Merger{
		store:  store,
		path:   path,
		clock:  clk,
		logger: logger,
	}
}

// sourceStep applies one source's latest intermediate snapshot to the
// working country map. It returns the document's last_updated value and
// whether a document was consumed.
type sourceStep struct {
	name  string
	apply func(seed func(string) *CountryRecord) (string, bool, error)
}

// MergeAll produces a new merged snapshot and atomically replaces the
// canonical file. A missing intermediate snapshot for one source is skipped;
// a corrupt previous merged snapshot aborts the whole merge. Given unchanged
// inputs the resulting countries map is identical across runs, only
// generated_at differs.
func (m *Merger) MergeAll() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, err := m.readPrevious()
	if err != nil {
		return nil, err
	}

	countries := make(map[string]*CountryRecord)
	seed := func(code string) *CountryRecord {
		if record, ok := countries[code]; ok {
			return record
		}
		record := &CountryRecord{}
		if prev, ok := previous.Countries[code]; ok && prev != nil {
			record.Name = prev.Name
			record.NameZH = prev.NameZH
			record.Capital = prev.Capital
		}
		countries[code] = record
		return record
	}

	// Fixed precedence order: later sources write different fields, so the
	// order only matters for reproducibility.
	steps := []sourceStep{
		{snapshot.NamespaceGDP, m.applyGDP},
		{snapshot.NamespaceOil, m.applyOil},
		{snapshot.NamespaceAgriculture, m.applyAgriculture},
		{snapshot.NamespaceMinerals, m.applyMinerals},
	}

	var lastUpdated []string
	for _, step := range steps {
		updated, consumed, err := step.apply(seed)
		if err != nil {
			// One bad source must not abort merging the others.
			m.logger.Warn("skipping source snapshot",
				zap.String("source", step.name),
				zap.Error(err),
			)
			continue
		}
		if consumed {
			lastUpdated = append(lastUpdated, updated)
		}
	}

	// Countries known before this run keep their identity fields even when
	// no current source mentions them.
	for code := range previous.Countries {
		seed(code)
	}

	merged := &Snapshot{
		Metadata: Metadata{
			GeneratedAt: m.clock.Now().UTC().Format(snapshot.TimeFormat),
			Version:     versionOrDefault(previous.Metadata.Version),
			LastCrawl:   lastCrawl(lastUpdated, previous.Metadata.LastCrawl),
		},
		Countries: countries,
	}

	if err := snapshot.WriteFileAtomic(m.path, merged); err != nil {
		return nil, fmt.Errorf("persist merged snapshot: %w", err)
	}
	m.logger.Info("merged snapshot written",
		zap.String("path", m.path),
		zap.Int("countries", len(countries)),
		zap.Int("sources_consumed", len(lastUpdated)),
	)
	return merged, nil
}

// Path returns the canonical merged snapshot path.
func (m *Merger) Path() string {
	return m.path
}

// readPrevious loads the previous merged snapshot. A missing file yields an
// empty snapshot; a malformed file is fatal so a corrupted baseline is never
// silently replaced by a partial rebuild.
func (m *Merger) readPrevious() (*Snapshot, error) {
	previous := &Snapshot{Countries: map[string]*CountryRecord{}}
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return previous, nil
	}
	if err := snapshot.ReadFile(m.path, previous); err != nil {
		return nil, fmt.Errorf("previous merged snapshot unreadable: %w", err)
	}
	if previous.Countries == nil {
		previous.Countries = map[string]*CountryRecord{}
	}
	return previous, nil
}

func (m *Merger) applyGDP(seed func(string) *CountryRecord) (string, bool, error) {
	var doc snapshot.GDPDoc
	found, err := m.store.ReadLatest(snapshot.NamespaceGDP, &doc)
	if err != nil || !found {
		return "", false, err
	}
	for code, entry := range doc.Data {
		record := seed(code)
		value := entry.Value
		record.GDP = &FieldValue{
			Value:   &value,
			Unit:    firstNonEmpty(entry.Unit, doc.Unit, defaultGDPUnit),
			Year:    entry.Year,
			LagNote: entry.LagNote,
		}
	}
	return doc.LastUpdated, true, nil
}

func (m *Merger) applyOil(seed func(string) *CountryRecord) (string, bool, error) {
	var doc snapshot.OilDoc
	found, err := m.store.ReadLatest(snapshot.NamespaceOil, &doc)
	if err != nil || !found {
		return "", false, err
	}
	for code, entry := range doc.Data {
		record := seed(code)
		value := entry.Value
		record.OilProduction = &FieldValue{
			Value:   &value,
			Unit:    firstNonEmpty(entry.Unit, doc.Unit, defaultOilUnit),
			Year:    entry.Year,
			Month:   entry.Month,
			LagNote: entry.LagNote,
		}
	}
	return doc.LastUpdated, true, nil
}

func (m *Merger) applyAgriculture(seed func(string) *CountryRecord) (string, bool, error) {
	var doc snapshot.AgricultureDoc
	found, err := m.store.ReadLatest(snapshot.NamespaceAgriculture, &doc)
	if err != nil || !found {
		return "", false, err
	}
	for code, entry := range doc.Data {
		record := seed(code)
		total := entry.Total
		record.GrainProduction = &FieldValue{
			Total:      &total,
			Unit:       firstNonEmpty(entry.Unit, doc.Unit, defaultGrainUnit),
			ByCategory: copyCategories(entry.ByCategory),
			Year:       entry.Year,
			LagNote:    entry.LagNote,
		}
	}
	return doc.LastUpdated, true, nil
}

func (m *Merger) applyMinerals(seed func(string) *CountryRecord) (string, bool, error) {
	var doc snapshot.MineralsDoc
	found, err := m.store.ReadLatest(snapshot.NamespaceMinerals, &doc)
	if err != nil || !found {
		return "", false, err
	}
	for code, entry := range doc.Nonferrous.Data {
		record := seed(code)
		record.NonferrousMetals = &FieldValue{
			Unit:       firstNonEmpty(entry.Unit, doc.Nonferrous.Unit, defaultNonferrousUnit),
			ByCategory: copyCategories(entry.ByCategory),
			Year:       entry.Year,
			LagNote:    entry.LagNote,
		}
	}
	for code, entry := range doc.Gold.Data {
		record := seed(code)
		value := entry.Value
		record.GoldProduction = &FieldValue{
			Value:   &value,
			Unit:    firstNonEmpty(entry.Unit, doc.Gold.Unit, defaultGoldUnit),
			Year:    entry.Year,
			LagNote: entry.LagNote,
			Source:  firstNonEmpty(entry.Source, doc.Gold.Source),
		}
	}
	return doc.LastUpdated, true, nil
}

// lastCrawl picks the most recent parsable last_updated timestamp among the
// consumed source documents, falling back to the previous snapshot's value
// when no source was consumed. Unparsable values are ignored.
func lastCrawl(updated []string, previous string) string {
	var latest time.Time
	found := false
	for _, value := range updated {
		if value == "" {
			continue
		}
		parsed, err := dateparse.ParseAny(value)
		if err != nil {
			continue
		}
		if !found || parsed.After(latest) {
			latest = parsed
			found = true
		}
	}
	if !found {
		return previous
	}
	return latest.UTC().Format(snapshot.TimeFormat)
}

func versionOrDefault(version string) string {
	if version == "" {
		return DefaultVersion
	}
	return version
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyCategories(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
