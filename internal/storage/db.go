package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoMatches is returned when no runs match the query.
	ErrNoMatches = errors.New("no runs found")
	// ErrManyMatches is returned when multiple runs match the query.
	ErrManyMatches = errors.New("multiple runs matched the input")
)

const (
	indexFileName      = "runs.jsonl"
	compactMinOps      = 256
	compactScaleFactor = 4
)

// Outcome is how a research run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCached    Outcome = "cached"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
)

type runEvent struct {
	Op  string `json:"op"`
	ID  string `json:"id,omitempty"`
	Run *Run   `json:"run,omitempty"`
}

// Open loads the run history index from the given datasource.
//
// The datasource is usually a directory path. The special value ":memory:"
// creates a temporary store (primarily used for tests).
func Open(ds string) (*DB, error) {
	dir, cleanupDir, err := resolveStoreDir(ds)
	if err != nil {
		return nil, fmt.Errorf("could not resolve store path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}

	db := &DB{
		indexPath:      filepath.Join(dir, indexFileName),
		lock:           flock.New(filepath.Join(dir, "runs.lock")),
		runs:           make(map[string]Run),
		cleanupTempDir: cleanupDir,
	}
	if err := db.load(); err != nil {
		return nil, err
	}

	return db, nil
}

// DB is an append-only JSONL-backed index of research runs.
type DB struct {
	mu             sync.RWMutex
	indexPath      string
	lock           *flock.Flock
	runs           map[string]Run
	ops            int
	cleanupTempDir string
}

// Run is one research invocation.
type Run struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Key       string    `json:"key"`
	Outcome   Outcome   `json:"outcome"`
	Articles  int       `json:"articles,omitempty"`
	API       string    `json:"api,omitempty"`
	Model     string    `json:"model,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Close releases temporary resources (used for :memory: stores).
func (db *DB) Close() error {
	if db.cleanupTempDir == "" {
		return nil
	}
	if err := os.RemoveAll(db.cleanupTempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save upserts a run record, stamping UpdatedAt.
func (db *DB) Save(run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("Save: %w", errors.New("empty id"))
	}
	if strings.TrimSpace(run.Topic) == "" {
		return fmt.Errorf("Save: %w", errors.New("empty topic"))
	}
	run.UpdatedAt = time.Now().UTC()

	db.mu.Lock()
	defer db.mu.Unlock()

	db.runs[run.ID] = run
	if err := db.appendEventLocked(runEvent{Op: "upsert", Run: &run}); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	if err := db.compactIfNeededLocked(); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Delete removes a run record by ID.
func (db *DB) Delete(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("Delete: %w", errors.New("empty id"))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.runs[id]; !ok {
		return nil
	}
	delete(db.runs, id)

	if err := db.appendEventLocked(runEvent{Op: "delete", ID: id}); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if err := db.compactIfNeededLocked(); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// ListOlderThan returns runs older than the given duration.
func (db *DB) ListOlderThan(t time.Duration) []Run {
	cutoff := time.Now().Add(-t)

	db.mu.RLock()
	runs := make([]Run, 0, len(db.runs))
	for _, run := range db.runs {
		if run.UpdatedAt.Before(cutoff) {
			runs = append(runs, run)
		}
	}
	db.mu.RUnlock()

	sortRunsByUpdatedAtDesc(runs)
	return runs
}

// ListByKey returns every run recorded for a topic key.
func (db *DB) ListByKey(key string) []Run {
	db.mu.RLock()
	var runs []Run
	for _, run := range db.runs {
		if run.Key == key {
			runs = append(runs, run)
		}
	}
	db.mu.RUnlock()

	sortRunsByUpdatedAtDesc(runs)
	return runs
}

// FindHEAD returns the most recently updated run.
func (db *DB) FindHEAD() (*Run, error) {
	list := db.List()
	if len(list) == 0 {
		return nil, fmt.Errorf("FindHead: %w", ErrNoMatches)
	}
	head := list[0]
	return &head, nil
}

// Completions returns shell completion candidates for IDs and topics.
func (db *DB) Completions(in string) []string {
	resultSet := make(map[string]struct{})

	db.mu.RLock()
	for _, run := range db.runs {
		if strings.HasPrefix(run.ID, in) {
			displayID := run.ID
			if len(in) < IDShort && len(run.ID) > IDShort {
				displayID = run.ID[:IDShort]
			}
			resultSet[fmt.Sprintf("%s\t%s", displayID, run.Topic)] = struct{}{}
		}
		if strings.HasPrefix(run.Topic, in) {
			displayID := run.ID
			if len(run.ID) > IDShort {
				displayID = run.ID[:IDShort]
			}
			resultSet[fmt.Sprintf("%s\t%s", run.Topic, displayID)] = struct{}{}
		}
	}
	db.mu.RUnlock()

	result := make([]string, 0, len(resultSet))
	for value := range resultSet {
		result = append(result, value)
	}
	sort.Strings(result)
	return result
}

// Find resolves a run by ID prefix or exact topic. When several runs share a
// topic the most recent one wins. A full run ID only ever matches that run.
func (db *DB) Find(in string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if IDRegexp.MatchString(in) {
		if run, ok := db.runs[in]; ok {
			return &run, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, in)
	}

	var byID, byTopic []Run
	for _, run := range db.runs {
		if len(in) >= IDMinLen && strings.HasPrefix(run.ID, in) {
			byID = append(byID, run)
			continue
		}
		if run.Topic == in {
			byTopic = append(byTopic, run)
		}
	}

	if len(byID) > 1 {
		return nil, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
	if len(byID) == 1 {
		return &byID[0], nil
	}
	if len(byTopic) > 0 {
		sortRunsByUpdatedAtDesc(byTopic)
		return &byTopic[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatches, in)
}

// List returns runs sorted by most recently updated.
func (db *DB) List() []Run {
	db.mu.RLock()
	runs := make([]Run, 0, len(db.runs))
	for _, run := range db.runs {
		runs = append(runs, run)
	}
	db.mu.RUnlock()

	sortRunsByUpdatedAtDesc(runs)
	return runs
}

func resolveStoreDir(ds string) (dir string, cleanupDir string, err error) {
	if ds == ":memory:" {
		tempDir, err := os.MkdirTemp("", "yar-runs-*")
		if err != nil {
			return "", "", fmt.Errorf("could not create temp runs directory: %w", err)
		}
		return tempDir, tempDir, nil
	}

	if filepath.Ext(ds) == ".db" {
		return filepath.Dir(ds), "", nil
	}

	return ds, "", nil
}

func (db *DB) load() error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("could not lock index file: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	file, err := os.Open(db.indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not open index file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt runEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return fmt.Errorf("could not parse index event: %w", err)
		}
		if err := db.applyEvent(&evt); err != nil {
			return err
		}
		db.ops++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not scan index file: %w", err)
	}
	return nil
}

func (db *DB) applyEvent(evt *runEvent) error {
	switch evt.Op {
	case "upsert":
		if evt.Run == nil {
			return fmt.Errorf("invalid upsert event: missing run")
		}
		if strings.TrimSpace(evt.Run.ID) == "" {
			return fmt.Errorf("invalid upsert event: empty id")
		}
		db.runs[evt.Run.ID] = *evt.Run
	case "delete":
		if strings.TrimSpace(evt.ID) == "" {
			return fmt.Errorf("invalid delete event: empty id")
		}
		delete(db.runs, evt.ID)
	default:
		return fmt.Errorf("invalid index event op: %q", evt.Op)
	}
	return nil
}

func (db *DB) appendEventLocked(evt runEvent) error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("lock index: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	file, err := os.OpenFile(db.indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = file.Close() }()

	bts, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}
	bts = append(bts, '\n')
	if _, err := file.Write(bts); err != nil {
		return fmt.Errorf("write index event: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}

	db.ops++
	return nil
}

func (db *DB) compactIfNeededLocked() error {
	if db.ops < compactMinOps {
		return nil
	}
	if len(db.runs) > 0 && db.ops < len(db.runs)*compactScaleFactor {
		return nil
	}
	return db.compactLocked()
}

func (db *DB) compactLocked() error {
	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return fmt.Errorf("lock index: %w", err)
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	items := make([]Run, 0, len(db.runs))
	for _, run := range db.runs {
		items = append(items, run)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})

	tmpPath := db.indexPath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open compacted index: %w", err)
	}

	enc := json.NewEncoder(file)
	for _, run := range items {
		if err := enc.Encode(runEvent{Op: "upsert", Run: &run}); err != nil {
			_ = file.Close()
			return fmt.Errorf("write compacted index: %w", err)
		}
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync compacted index: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close compacted index: %w", err)
	}

	if err := os.Rename(tmpPath, db.indexPath); err != nil {
		return fmt.Errorf("replace index with compacted version: %w", err)
	}
	_ = syncDir(filepath.Dir(db.indexPath))

	db.ops = len(db.runs)
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

func sortRunsByUpdatedAtDesc(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].UpdatedAt.Equal(runs[j].UpdatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
}
