// File: cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// logEvent holds the fields of a JSON log line that watch reports on.
type logEvent struct {
	Level     string `json:"level"`
	TS        string `json:"ts"`
	Logger    string `json:"logger"`
	Msg       string `json:"msg"`
	Error     string `json:"error"`
	Sequence  int    `json:"sequence"`
	Bytes     int    `json:"bytes"`
	Reason    string `json:"reason"`
	Steps     int    `json:"steps"`
	Step      int    `json:"step"`
	Artifacts int    `json:"artifacts"`
	Depth     int    `json:"depth"`
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		file      string
		fromStart bool
	)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running exploration through its JSON log file",
		Long: `Watch tails the JSON log file written by explore and prints captured
submissions, checkpoint failures, errors and the final outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.Logger().LogFile
			}
			if file == "" {
				return errors.New("no log file configured (set logger.log_file or pass --file)")
			}
			return watchLog(cmd.Context(), file, fromStart, cmd.OutOrStdout())
		},
	}

	watchCmd.Flags().StringVarP(&file, "file", "f", "", "Log file to follow. (Overrides logger.log_file)")
	watchCmd.Flags().BoolVar(&fromStart, "from-start", false, "Replay the whole file before following it.")
	return watchCmd
}

func watchLog(ctx context.Context, path string, fromStart bool, out io.Writer) error {
	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				fmt.Fprintf(out, "read error: %v\n", line.Err)
				continue
			}
			if text, ok := formatEvent(line.Text); ok {
				fmt.Fprintln(out, text)
			}
		}
	}
}

// formatEvent renders the log lines worth showing. Everything else, including
// lines that are not JSON, is skipped.
func formatEvent(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return "", false
	}
	var ev logEvent
	if err := json.UnmarshalFromString(line, &ev); err != nil {
		return "", false
	}

	stamp := ev.TS
	if ts, err := time.Parse(logTimeLayout, ev.TS); err == nil {
		stamp = ts.Format(time.TimeOnly)
	}

	var text string
	switch ev.Msg {
	case "Captured payload.":
		text = fmt.Sprintf("captured #%d (%d bytes)", ev.Sequence, ev.Bytes)
	case "Traversal finished.", "Traversal stuck.", "Traversal aborted.":
		text = fmt.Sprintf("traversal %s: %d steps, %d artifacts, depth %d", ev.Reason, ev.Steps, ev.Artifacts, ev.Depth)
		if ev.Error != "" {
			text += ": " + ev.Error
		}
	case "Checkpoint failed, continuing.":
		text = fmt.Sprintf("checkpoint failed at step %d: %s", ev.Step, ev.Error)
	case "Resuming saved progress.":
		text = fmt.Sprintf("resuming at depth %d with %d artifacts", ev.Depth, ev.Artifacts)
	default:
		if ev.Level != "error" {
			return "", false
		}
		text = "error: " + ev.Msg
		if ev.Error != "" {
			text += ": " + ev.Error
		}
	}
	return stamp + "  " + text, true
}
