package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/model"
)

type stubSnapshot struct {
	status   model.StatusSnapshot
	progress model.ProgressReport
	window   model.LogWindow
	err      error
}

func (s *stubSnapshot) Status(context.Context) model.StatusSnapshot { return s.status }

func (s *stubSnapshot) Progress(context.Context) (model.ProgressReport, error) {
	return s.progress, s.err
}

func (s *stubSnapshot) Logs(context.Context, int) (model.LogWindow, error) {
	return s.window, nil
}

func sampleSnapshot() *stubSnapshot {
	return &stubSnapshot{
		status: model.StatusSnapshot{
			TasksFileExists: true,
			LogFileExists:   true,
			Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		progress: model.ProgressReport{
			Stats: model.ProgressStats{TotalTasks: 2, TotalSubtasks: 3, CompletedSubtasks: 2, ProgressPercent: 67},
			Tasks: []model.TaskProgress{
				{ID: model.NumericID(1), Name: "Build | package", EffectiveStatus: model.StatusComplete, Subtasks: 2, CompletedSubtasks: 2},
				{ID: model.NumericID(2), Name: "Ship", EffectiveStatus: model.StatusInProgress, Subtasks: 1},
			},
		},
		window: model.LogWindow{Exists: true, Lines: []string{
			"INFO starting",
			"❌ ERROR compile failed",
			"⚠️ WARNING slow step",
			"✅ SUCCESS tests passed",
		}},
	}
}

func TestFormat(t *testing.T) {
	f := NewFormatter(sampleSnapshot(), "", 0)

	out, err := f.Format(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "# Pipeline Progress Report")
	assert.Contains(t, out, "> Generated at 2026-01-02 03:04:05 UTC.")
	assert.Contains(t, out, "| tasks.json | present |")
	assert.Contains(t, out, "| Progress | 67% |")
	assert.Contains(t, out, `| 1 | Build \| package | complete | 2/2 |`)
	assert.Contains(t, out, "| 2 | Ship | in-progress | 0/1 |")
	assert.Contains(t, out, "Last 4 lines: 1 errors, 1 warnings, 1 successes.")
	assert.Contains(t, out, "## Recent Errors (Last 1)")
	assert.Contains(t, out, "- ❌ ERROR compile failed")
	assert.Contains(t, out, "- ⚠️ WARNING slow step")
	assert.NotContains(t, out, "## Monitor Diagnostics")
}

func TestFormat_Empty(t *testing.T) {
	f := NewFormatter(&stubSnapshot{status: model.StatusSnapshot{Timestamp: time.Now()}}, "", 0)

	out, err := f.Format(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "| _No tasks_ | - | - | - |")
	assert.Contains(t, out, "_No log file yet._")
	assert.Contains(t, out, "_No recent errors._")
	assert.Contains(t, out, "_No recent warnings._")
}

func TestFormat_Error(t *testing.T) {
	ioErr := errors.New("disk gone")
	f := NewFormatter(&stubSnapshot{err: ioErr}, "", 0)

	_, err := f.Format(context.Background())
	assert.ErrorIs(t, err, ioErr)
}

func TestFormat_LimitsRecentLines(t *testing.T) {
	snap := sampleSnapshot()
	snap.window.Lines = nil
	for i := 0; i < 25; i++ {
		snap.window.Lines = append(snap.window.Lines, "ERROR number "+string(rune('a'+i)))
	}
	f := NewFormatter(snap, "", 0)

	out, err := f.Format(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "## Recent Errors (Last 10)")
	assert.Contains(t, out, "- ERROR number y")
	assert.NotContains(t, out, "- ERROR number o\n")
}

func TestFormat_Diagnostics(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	audit, err := events.NewAuditLogger(auditPath, 0)
	require.NoError(t, err)
	audit.Record(events.Event{Type: events.EventTasksMalformed, Path: "/p/tasks.json", Err: errors.New("unexpected end of JSON input")})
	audit.Record(events.Event{Type: events.EventLogRotated, Path: "/p/pipeline.log"})
	require.NoError(t, audit.Close())

	// A torn trailing line is skipped.
	fh, err := os.OpenFile(auditPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = fh.WriteString(`{"timestamp":`)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	f := NewFormatter(sampleSnapshot(), auditPath, 0)
	out, err := f.Format(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "## Monitor Diagnostics (Last 2)")
	assert.Contains(t, out, "| tasks_malformed | /p/tasks.json | unexpected end of JSON input |")
	assert.Contains(t, out, "| log_rotated | /p/pipeline.log | - |")
}

func TestFormat_MissingAuditLog(t *testing.T) {
	f := NewFormatter(sampleSnapshot(), filepath.Join(t.TempDir(), "absent.jsonl"), 0)

	out, err := f.Format(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, out, "## Monitor Diagnostics")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	f := NewFormatter(sampleSnapshot(), "", 0)

	require.NoError(t, f.WriteFile(context.Background(), path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Pipeline Progress Report"))
}
