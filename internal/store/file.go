package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

// FileStore keeps history in memory and rewrites a JSON file after every
// change. Memory only changes once the file write succeeds.
type FileStore struct {
	*Memory
	path string
}

func NewFileStore(path string, opts Options) (*FileStore, error) {
	fs := &FileStore{Memory: NewMemory(opts), path: path}
	st, err := loadState(path)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	fs.restore(st)
	return fs, nil
}

func loadState(path string) (state, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state{Entries: []Entry{}}, nil
		}
		return state{}, err
	}
	var st state
	if err := json.Unmarshal(blob, &st); err != nil {
		return state{}, err
	}
	return st, nil
}

func saveState(path string, st state) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *FileStore) persist(_ context.Context, _, next state) error {
	if err := saveState(f.path, next); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (f *FileStore) Save(ctx context.Context, sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot) (Entry, error) {
	return f.save(ctx, sub, a, snap, f.persist)
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	return f.apply(ctx, removeEntry(id), f.persist)
}

func (f *FileStore) Clear(ctx context.Context) error {
	return f.apply(ctx, clearEntries, f.persist)
}
