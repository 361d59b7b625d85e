// File: internal/persistence/backup.go
package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

const (
	backupSuffix      = ".bak"
	compressedSuffix  = ".br"
	backupStampLayout = "20060102T150405Z"
)

// Backup describes one backup file next to the state document.
type Backup struct {
	Path    string
	Counter int
}

// Backups lists the backups of the state document, oldest first.
func (m *Manager) Backups() ([]Backup, error) {
	matches, err := filepath.Glob(m.path + ".*" + backupSuffix + "*")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	var out []Backup
	for _, p := range matches {
		if n, ok := m.parseBackup(p); ok {
			out = append(out, Backup{Path: p, Counter: n})
		}
	}
	slices.SortFunc(out, func(a, b Backup) int { return a.Counter - b.Counter })
	return out, nil
}

// parseBackup extracts the counter from <state>.<stamp>.<counter>.bak[.br].
func (m *Manager) parseBackup(p string) (int, bool) {
	rest, ok := strings.CutPrefix(p, m.path+".")
	if !ok {
		return 0, false
	}
	rest = strings.TrimSuffix(rest, compressedSuffix)
	rest, ok = strings.CutSuffix(rest, backupSuffix)
	if !ok {
		return 0, false
	}
	stamp, counter, ok := strings.Cut(rest, ".")
	if !ok || len(stamp) != len(backupStampLayout) {
		return 0, false
	}
	n, err := strconv.Atoi(counter)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// backupLocked copies the current document, if any, to the next backup name.
func (m *Manager) backupLocked() (string, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state for backup: %w", err)
	}

	if !m.scanned {
		existing, err := m.Backups()
		if err != nil {
			return "", err
		}
		if len(existing) > 0 {
			m.counter = existing[len(existing)-1].Counter
		}
		m.scanned = true
	}
	m.counter++

	name := fmt.Sprintf("%s.%s.%04d%s", m.path, m.now().UTC().Format(backupStampLayout), m.counter, backupSuffix)
	if m.opts.CompressBackups {
		name += compressedSuffix
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(data); err != nil {
			return "", fmt.Errorf("failed to compress backup: %w", err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("failed to compress backup: %w", err)
		}
		data = buf.Bytes()
	}

	if err := writeAtomic(name, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return name, nil
}

// pruneLocked removes the oldest backups beyond MaxBackups.
func (m *Manager) pruneLocked() error {
	if m.opts.MaxBackups <= 0 {
		return nil
	}
	backups, err := m.Backups()
	if err != nil {
		return err
	}
	var errs []error
	for len(backups) > m.opts.MaxBackups {
		if err := os.Remove(backups[0].Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		backups = backups[1:]
	}
	return errors.Join(errs...)
}

// ReadBackup decodes one backup file, decompressing it when needed.
func ReadBackup(path string) (*explorer.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, compressedSuffix) {
		r = brotli.NewReader(f)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return Decode(data)
}

func (m *Manager) loadNewestBackup() (*explorer.State, string, error) {
	backups, err := m.Backups()
	if err != nil {
		return nil, "", err
	}
	if len(backups) == 0 {
		return nil, "", errors.New("no backups")
	}
	var errs []error
	for i := len(backups) - 1; i >= 0; i-- {
		state, err := ReadBackup(backups[i].Path)
		if err == nil {
			return state, backups[i].Path, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(backups[i].Path), err))
	}
	return nil, "", errors.Join(errs...)
}
