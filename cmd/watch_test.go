// File: cmd/watch_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{
			name: "capture",
			line: `{"level":"info","ts":"2026-10-19T10:15:00.123Z","logger":"quizwalk.capture","msg":"Captured payload.","sequence":12,"bytes":734}`,
			want: "10:15:00  captured #12 (734 bytes)",
			ok:   true,
		},
		{
			name: "completion",
			line: `{"level":"info","ts":"2026-10-19T10:20:00.000Z","logger":"quizwalk.engine","msg":"Traversal finished.","reason":"complete","steps":23,"artifacts":6,"depth":0}`,
			want: "10:20:00  traversal complete: 23 steps, 6 artifacts, depth 0",
			ok:   true,
		},
		{
			name: "stuck carries the cause",
			line: `{"level":"warn","ts":"2026-10-19T10:20:00.000Z","msg":"Traversal stuck.","reason":"stuck","steps":4,"artifacts":1,"depth":2,"error":"no progress"}`,
			want: "10:20:00  traversal stuck: 4 steps, 1 artifacts, depth 2: no progress",
			ok:   true,
		},
		{
			name: "checkpoint failure",
			line: `{"level":"error","ts":"2026-10-19T10:20:00.000Z","msg":"Checkpoint failed, continuing.","step":25,"error":"disk full"}`,
			want: "10:20:00  checkpoint failed at step 25: disk full",
			ok:   true,
		},
		{
			name: "other errors",
			line: `{"level":"error","ts":"2026-10-19T10:20:00.000Z","msg":"Failed to store intercepted submission.","error":"closed"}`,
			want: "10:20:00  error: Failed to store intercepted submission.: closed",
			ok:   true,
		},
		{
			name: "unparseable timestamp is kept",
			line: `{"level":"info","ts":"yesterday","msg":"Captured payload.","sequence":1,"bytes":2}`,
			want: "yesterday  captured #1 (2 bytes)",
			ok:   true,
		},
		{name: "routine info", line: `{"level":"info","ts":"2026-10-19T10:20:00.000Z","msg":"Discovered page."}`},
		{name: "console line", line: `2026-10-19T10:20:00.000Z	INFO	quizwalk.engine.	Traversal finished.`},
		{name: "broken json", line: `{"level":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatEvent(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchCmd_MissingFile(t *testing.T) {
	_, err := executeCommand(t, "watch", "--file", "/nonexistent/dir/quizwalk.log")
	assert.Error(t, err, "a missing file cannot be followed")
}
