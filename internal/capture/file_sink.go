package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// FileSink writes each payload to <dir>/payload_<n>.json, pretty-printed when
// the body is JSON.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory (a leading ~ is expanded) if needed.
func NewFileSink(dir string) (*FileSink, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand payload dir: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create payload dir: %w", err)
	}
	return &FileSink{dir: expanded}, nil
}

// Dir is the resolved payload directory.
func (s *FileSink) Dir() string { return s.dir }

// PathFor returns the file a payload sequence number is written to.
func (s *FileSink) PathFor(sequence int) string {
	return filepath.Join(s.dir, fmt.Sprintf("payload_%d.json", sequence))
}

func (s *FileSink) Write(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// json.Indent keeps the submitted key order.
	var out bytes.Buffer
	if err := json.Indent(&out, p.Body, "", "  "); err != nil {
		out.Reset()
		out.Write(p.Body)
	}
	return os.WriteFile(s.PathFor(p.Sequence), out.Bytes(), 0o644)
}

func (s *FileSink) Close() error { return nil }
