package status

import (
	"context"
	"fmt"
	"io"

	"github.com/msageha/pipeline_monitor/internal/logtail"
)

const ansiReset = "\x1b[0m"

var levelColors = map[logtail.Level]string{
	logtail.LevelError:   "\x1b[31m",
	logtail.LevelWarning: "\x1b[33m",
	logtail.LevelSuccess: "\x1b[32m",
	logtail.LevelInfo:    "\x1b[36m",
}

// TailOptions controls Tail output.
type TailOptions struct {
	Lines       int
	Placeholder string
	// Color wraps classified lines in ANSI colours.
	Color bool
}

// Tail prints the last lines of the log, or the placeholder when the log
// does not exist.
func Tail(ctx context.Context, w io.Writer, snap Snapshotter, opts TailOptions) error {
	window, err := snap.Logs(ctx, opts.Lines)
	if err != nil {
		return err
	}
	if !window.Exists {
		_, err := fmt.Fprintln(w, opts.Placeholder)
		return err
	}

	for _, line := range window.Lines {
		if opts.Color {
			if c, ok := levelColors[logtail.Classify(line)]; ok {
				line = c + line + ansiReset
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
