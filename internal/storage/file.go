package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	trackersFile = "trade_trackers.json"
	historyFile  = "signal_history.json"
	ledgerFile   = "trade_ledger.json"
)

// FileStore persists state as JSON files inside a directory. Writes go
// through a temp file and an atomic rename so a crash mid-write never
// leaves a truncated file behind.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the state directory if needed and returns a store
// rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) LoadTrackers() (map[string]*TradeTracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	trackers := make(map[string]*TradeTracker)
	if err := f.readJSON(trackersFile, &trackers); err != nil {
		return nil, err
	}
	return trackers, nil
}

func (f *FileStore) SaveTrackers(trackers map[string]*TradeTracker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(trackersFile, trackers)
}

func (f *FileStore) LoadHistory() (HistoryMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	history := make(HistoryMap)
	if err := f.readJSON(historyFile, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (f *FileStore) SaveHistory(history HistoryMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(historyFile, history)
}

func (f *FileStore) LoadLedger() ([]LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ledger []LedgerEntry
	if err := f.readJSON(ledgerFile, &ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (f *FileStore) AppendLedger(entries []LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ledger []LedgerEntry
	if err := f.readJSON(ledgerFile, &ledger); err != nil {
		return err
	}
	ledger = append(ledger, entries...)
	return f.writeJSON(ledgerFile, ledger)
}

// readJSON fills out from the named file; a missing file leaves out at
// its zero value.
func (f *FileStore) readJSON(name string, out interface{}) error {
	path := filepath.Join(f.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (f *FileStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(f.dir, name)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file for %s: %w", name, err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}
