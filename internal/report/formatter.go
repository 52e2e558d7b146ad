// Package report renders a markdown progress report of the pipeline.
package report

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/logtail"
	"github.com/msageha/pipeline_monitor/internal/model"
	atomicyaml "github.com/msageha/pipeline_monitor/internal/yaml"
)

// Snapshotter is the part of snapshot.Service a report is built from.
type Snapshotter interface {
	Status(ctx context.Context) model.StatusSnapshot
	Progress(ctx context.Context) (model.ProgressReport, error)
	Logs(ctx context.Context, maxLines int) (model.LogWindow, error)
}

// LogSummary counts classified lines in the scanned log tail.
type LogSummary struct {
	Scanned  int
	Errors   int
	Warnings int
	Success  int
	Exists   bool
}

// Data is everything the report template renders.
type Data struct {
	Stats          model.ProgressStats
	Tasks          []model.TaskProgress
	Files          model.StatusSnapshot
	Log            LogSummary
	RecentErrors   []string
	RecentWarnings []string
	Diagnostics    []events.LogEntry
	LastUpdated    time.Time
}

type Formatter struct {
	snap      Snapshotter
	auditPath string
	logLines  int

	maxErrors      int
	maxWarnings    int
	maxDiagnostics int
}

// NewFormatter builds a formatter over snap. auditPath is the diagnostics
// JSONL file; empty leaves the diagnostics section out.
func NewFormatter(snap Snapshotter, auditPath string, logLines int) *Formatter {
	if logLines <= 0 {
		logLines = 1000
	}
	return &Formatter{
		snap:           snap,
		auditPath:      auditPath,
		logLines:       logLines,
		maxErrors:      10,
		maxWarnings:    10,
		maxDiagnostics: 10,
	}
}

// Format collects a snapshot and renders it.
func (f *Formatter) Format(ctx context.Context) (string, error) {
	data, err := f.collect(ctx)
	if err != nil {
		return "", fmt.Errorf("collect report data: %w", err)
	}

	var out strings.Builder
	if err := reportTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return out.String(), nil
}

func (f *Formatter) Write(ctx context.Context, w io.Writer) error {
	formatted, err := f.Format(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, formatted)
	return err
}

// WriteFile replaces path with a freshly rendered report.
func (f *Formatter) WriteFile(ctx context.Context, path string) error {
	formatted, err := f.Format(ctx)
	if err != nil {
		return err
	}
	return atomicyaml.WriteFileAtomic(path, []byte(formatted), nil)
}

func (f *Formatter) collect(ctx context.Context) (*Data, error) {
	progress, err := f.snap.Progress(ctx)
	if err != nil {
		return nil, err
	}
	window, err := f.snap.Logs(ctx, f.logLines)
	if err != nil {
		return nil, err
	}
	files := f.snap.Status(ctx)

	data := &Data{
		Stats:          progress.Stats,
		Tasks:          progress.Tasks,
		Files:          files,
		RecentErrors:   make([]string, 0),
		RecentWarnings: make([]string, 0),
		LastUpdated:    files.Timestamp,
	}
	f.summarizeLog(data, window)

	if f.auditPath != "" {
		entries, err := readAuditLog(f.auditPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		data.Diagnostics = lastN(entries, f.maxDiagnostics)
	}
	return data, nil
}

func (f *Formatter) summarizeLog(data *Data, window model.LogWindow) {
	data.Log = LogSummary{Scanned: len(window.Lines), Exists: window.Exists}
	for _, line := range window.Lines {
		switch logtail.Classify(line) {
		case logtail.LevelError:
			data.Log.Errors++
			data.RecentErrors = append(data.RecentErrors, line)
		case logtail.LevelWarning:
			data.Log.Warnings++
			data.RecentWarnings = append(data.RecentWarnings, line)
		case logtail.LevelSuccess:
			data.Log.Success++
		}
	}
	data.RecentErrors = lastN(data.RecentErrors, f.maxErrors)
	data.RecentWarnings = lastN(data.RecentWarnings, f.maxWarnings)
}

// readAuditLog parses the diagnostics JSONL file, skipping lines that do
// not decode.
func readAuditLog(path string) ([]events.LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []events.LogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry events.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func lastN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func yesNo(b bool) string {
	if b {
		return "present"
	}
	return "missing"
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"cell":  cell,
	"yesno": yesNo,
}).Parse(`# Pipeline Progress Report

> Generated at {{ .LastUpdated.Format "2006-01-02 15:04:05 MST" }}.

## Files

| File | Status |
|------|--------|
| tasks.json | {{ yesno .Files.TasksFileExists }} |
| pipeline log | {{ yesno .Files.LogFileExists }} |

## Progress

| Metric | Value |
|--------|-------|
| Master Tasks | {{ .Stats.TotalTasks }} |
| Subtasks | {{ .Stats.TotalSubtasks }} |
| Completed | {{ .Stats.CompletedSubtasks }} |
| Progress | {{ .Stats.ProgressPercent }}% |

## Tasks

| ID | Name | Status | Subtasks |
|----|------|--------|----------|
{{ range .Tasks -}}
| {{ .ID }} | {{ cell .Name }} | {{ .EffectiveStatus }} | {{ .CompletedSubtasks }}/{{ .Subtasks }} |
{{ else -}}
| _No tasks_ | - | - | - |
{{ end }}
## Log Summary

{{ if .Log.Exists -}}
Last {{ .Log.Scanned }} lines: {{ .Log.Errors }} errors, {{ .Log.Warnings }} warnings, {{ .Log.Success }} successes.
{{- else -}}
_No log file yet._
{{- end }}

## Recent Errors (Last {{ len .RecentErrors }})

{{ range .RecentErrors -}}
- {{ cell . }}
{{ else -}}
_No recent errors._
{{ end }}
## Recent Warnings (Last {{ len .RecentWarnings }})

{{ range .RecentWarnings -}}
- {{ cell . }}
{{ else -}}
_No recent warnings._
{{ end }}
{{- if .Diagnostics }}
## Monitor Diagnostics (Last {{ len .Diagnostics }})

| Time | Event | Path | Error |
|------|-------|------|-------|
{{ range .Diagnostics -}}
| {{ .Timestamp.Format "15:04:05" }} | {{ .EventType }} | {{ if .Path }}{{ cell .Path }}{{ else }}-{{ end }} | {{ if .Error }}{{ cell .Error }}{{ else }}-{{ end }} |
{{ end -}}
{{ end }}
---
_Last updated: {{ .LastUpdated.Format "2006-01-02 15:04:05 MST" }}_
`))
