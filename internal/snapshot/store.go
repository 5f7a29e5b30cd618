package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrParse marks a document that exists on disk but cannot be decoded.
var ErrParse = errors.New("malformed snapshot document")

// Cadence controls how document file names are derived from the run time.
// Sources that refresh monthly get one file per month; annual sources get
// one file per year. Re-crawling within the same period overwrites the
// period's file, which keeps a natural history without retention logic.
type Cadence int

// Supported snapshot cadences.
const (
	CadenceMonthly Cadence = iota
	CadenceYearly
)

// FileName returns the document file name for a run at t.
func (c Cadence) FileName(t time.Time) string {
	if c == CadenceYearly {
		return t.UTC().Format("2006") + ".json"
	}
	return t.UTC().Format("2006-01") + ".json"
}

// Store reads and writes intermediate snapshot documents under a base
// directory, one sub-directory per source namespace.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir, creating it if absent.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Write persists doc under namespace with a file name derived from t and the
// source's cadence, and returns the document path. The document is written
// to a temporary file and renamed into place so a concurrent reader never
// observes a partial document.
func (s *Store) Write(namespace string, cadence Cadence, t time.Time, doc any) (string, error) {
	dir := filepath.Join(s.baseDir, namespace)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create namespace dir %s: %w", dir, err)
	}
	target := filepath.Join(dir, cadence.FileName(t))
	if err := WriteFileAtomic(target, doc); err != nil {
		return "", err
	}
	return target, nil
}

// ReadLatest decodes the most recently written document in namespace into
// out. Latest is decided by file modification time, not by file name. It
// returns false without error when the namespace has no documents.
func (s *Store) ReadLatest(namespace string, out any) (bool, error) {
	path, err := s.latestPath(namespace)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}
	if err := ReadFile(path, out); err != nil {
		return false, err
	}
	return true, nil
}

// ReadExact decodes the document at path into out.
func (s *Store) ReadExact(path string, out any) error {
	return ReadFile(path, out)
}

func (s *Store) latestPath(namespace string) (string, error) {
	dir := filepath.Join(s.baseDir, namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("list namespace %s: %w", namespace, err)
	}

	var (
		latest     string
		latestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(dir, entry.Name())
			latestTime = info.ModTime()
		}
	}
	return latest, nil
}

// ReadFile decodes the JSON document at path into out, wrapping decode
// failures with ErrParse.
func ReadFile(path string, out any) error {
	payload, err := os.ReadFile(path) //nolint:gosec // paths come from our own data dir
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	return nil
}

// WriteFileAtomic marshals doc and replaces path atomically: the payload is
// written to a temp file in the same directory, flushed, closed, then
// renamed over the destination.
func WriteFileAtomic(path string, doc any) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return fmt.Errorf("sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
