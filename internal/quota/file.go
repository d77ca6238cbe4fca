package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmehdipour/place-discovery/internal/model"
)

// FileLedger keeps the ledger in memory behind a mutex and rewrites a JSON
// file on every mutation. It is only safe within a single process.
type FileLedger struct {
	mu    sync.Mutex
	path  string
	opts  Options
	state model.QuotaState
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger loads path if it exists; a missing file starts from zero.
func NewFileLedger(path string, opts Options) (*FileLedger, error) {
	l := &FileLedger{path: path, opts: opts.normalized()}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) TryReserve(_ context.Context, n int64) (bool, error) {
	if n <= 0 {
		return false, ErrNonPositive
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Total+n > l.opts.Ceiling {
		return false, nil
	}
	if err := l.mutate(n); err != nil {
		return false, err
	}
	return true, nil
}

func (l *FileLedger) RecordUsage(_ context.Context, n int64) error {
	if n <= 0 {
		return ErrNonPositive
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutate(n)
}

func (l *FileLedger) Snapshot(context.Context) (model.QuotaSnapshot, error) {
	l.mu.Lock()
	st := l.state
	l.mu.Unlock()
	return model.SnapshotOf(st, l.opts.Ceiling, l.opts.Window, l.opts.Now()), nil
}

// mutate applies n and persists; on a write failure the in-memory state is
// rolled back so memory never runs ahead of disk. Caller holds mu.
func (l *FileLedger) mutate(n int64) error {
	prev := l.state
	apply(&l.state, n, l.opts.Now().UTC(), l.opts.Window)
	if err := l.persist(); err != nil {
		l.state = prev
		return err
	}
	return nil
}

func (l *FileLedger) persist() error {
	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create quota dir: %w", err)
		}
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write quota state: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write quota state: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync quota state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close quota state: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit quota state: %w", err)
	}
	return nil
}

func (l *FileLedger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read quota state: %w", err)
	}
	var st model.QuotaState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse quota state: %w", err)
	}
	l.state = st
	return nil
}
