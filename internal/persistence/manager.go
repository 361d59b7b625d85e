// File: internal/persistence/manager.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// Options controls where and how the state document is kept.
type Options struct {
	Path string
	// MaxBackups keeps only the newest n backups. Zero keeps all of them.
	MaxBackups      int
	CompressBackups bool
	// FallbackToBackup loads the newest readable backup when the primary
	// document is corrupt.
	FallbackToBackup bool
}

// Manager saves and loads the exploration state. Every save first backs up the
// document it replaces and then swaps the new one in atomically.
type Manager struct {
	opts   Options
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	counter int
	scanned bool
}

// NewManager resolves the state path (a leading ~ is expanded) and returns a manager.
func NewManager(opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Path == "" {
		return nil, errors.New("state path is required")
	}
	if opts.MaxBackups < 0 {
		return nil, fmt.Errorf("max backups must not be negative, got %d", opts.MaxBackups)
	}
	path, err := homedir.Expand(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand state path %q: %w", opts.Path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:   opts,
		path:   filepath.Clean(path),
		logger: logger.Named("persistence"),
		now:    time.Now,
	}, nil
}

// Path is the resolved location of the state document.
func (m *Manager) Path() string { return m.path }

// Save writes state durably. An existing document is backed up first; the new
// one goes to a temp file that is synced and renamed over the original.
func (m *Manager) Save(state *explorer.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	backup, err := m.backupLocked()
	if err != nil {
		return err
	}
	if err := writeAtomic(m.path, data); err != nil {
		return err
	}
	if err := m.pruneLocked(); err != nil {
		// The new document is already in place; a stale backup is harmless.
		m.logger.Warn("Failed to prune old state backups.", zap.Error(err))
	}

	m.logger.Info("State saved.",
		zap.String("path", m.path),
		zap.String("backup", backup),
		zap.Int("depth", len(state.DecisionStack)),
		zap.Int("frontier_pages", len(state.Frontier)),
		zap.Int("artifacts", state.ArtifactsCaptured),
	)
	return nil
}

// Checkpoint implements explorer.Checkpointer.
func (m *Manager) Checkpoint(ctx context.Context, state explorer.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Save(&state)
}

// Load reads the state document. found is false when no document exists, in
// which case the caller starts fresh.
func (m *Manager) Load() (*explorer.State, bool, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state %q: %w", m.path, err)
	}

	state, err := Decode(data)
	if err == nil {
		return state, true, nil
	}
	if !m.opts.FallbackToBackup {
		return nil, false, fmt.Errorf("state %q: %w", m.path, err)
	}

	m.logger.Warn("State document is corrupt, trying backups.", zap.String("path", m.path), zap.Error(err))
	state, from, berr := m.loadNewestBackup()
	if berr != nil {
		return nil, false, fmt.Errorf("state %q: %w (no usable backup: %v)", m.path, err, berr)
	}
	m.logger.Warn("Recovered state from backup.", zap.String("backup", from))
	return state, true, nil
}

// writeAtomic replaces path with data via a synced temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
