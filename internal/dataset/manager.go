// Package dataset serves the merged snapshot to readers, caching the parsed
// document in memory until the underlying file changes.
package dataset

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atlasforge/worldstat-crawler/internal/merge"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
)

// Manager is a read-mostly accessor over the canonical merged snapshot. The
// parsed snapshot is cached keyed by the file's modification time, so
// concurrent readers only hit disk when the merge engine replaced the file.
type Manager struct {
	mu     sync.Mutex
	path   string
	cached *merge.Snapshot
	mtime  time.Time
}

// NewManager creates a Manager reading from path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load returns the current merged snapshot. A missing file yields an empty
// snapshot rather than an error; the dataset simply has not been generated
// yet.
func (m *Manager) Load() (*merge.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.cached = &merge.Snapshot{Countries: map[string]*merge.CountryRecord{}}
			m.mtime = time.Time{}
			return m.cached, nil
		}
		return nil, err
	}

	if m.cached == nil || !info.ModTime().Equal(m.mtime) {
		loaded := &merge.Snapshot{}
		if err := snapshot.ReadFile(m.path, loaded); err != nil {
			return nil, err
		}
		if loaded.Countries == nil {
			loaded.Countries = map[string]*merge.CountryRecord{}
		}
		m.cached = loaded
		m.mtime = info.ModTime()
	}
	return m.cached, nil
}

// Country returns the merged record for a 3-letter country code,
// case-insensitively.
func (m *Manager) Country(code string) (*merge.CountryRecord, bool, error) {
	if code == "" {
		return nil, false, nil
	}
	data, err := m.Load()
	if err != nil {
		return nil, false, err
	}
	record, ok := data.Countries[strings.ToUpper(code)]
	if !ok || record == nil {
		return nil, false, nil
	}
	return record, true, nil
}

// Metadata returns the merged snapshot's metadata.
func (m *Manager) Metadata() (merge.Metadata, error) {
	data, err := m.Load()
	if err != nil {
		return merge.Metadata{}, err
	}
	return data.Metadata, nil
}
