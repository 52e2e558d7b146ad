// Package snapshot assembles what the monitor reports about the pipeline:
// the task document, the log tail, file existence and progress.
package snapshot

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/logtail"
	"github.com/msageha/pipeline_monitor/internal/model"
	"github.com/msageha/pipeline_monitor/internal/tasks"
)

// TaskLoader loads the task document at a path.
type TaskLoader interface {
	Load(path string) (model.TaskDocument, error)
	Invalidate(path string)
}

// LogTailer returns the last lines of a log file.
type LogTailer interface {
	Tail(path string, maxLines int) (model.LogWindow, error)
	Forget(path string)
}

// Service answers snapshot queries against the configured files. It keeps
// no file handles open between calls and is safe for concurrent use.
type Service struct {
	taskPath string
	logPath  string
	list     string
	maxLines int

	loader TaskLoader
	tailer LogTailer
	sink   events.Sink
	now    func() time.Time
}

type Option func(*Service)

func WithTaskLoader(l TaskLoader) Option {
	return func(s *Service) { s.loader = l }
}

func WithLogTailer(t LogTailer) Option {
	return func(s *Service) { s.tailer = t }
}

func WithSink(sink events.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service from cfg. Readers not supplied through options are
// constructed from cfg and share the service's sink.
func New(cfg model.Config, opts ...Option) *Service {
	s := &Service{
		taskPath: cfg.TaskFilePath(),
		logPath:  cfg.LogFilePath(),
		list:     cfg.Files.TaskList,
		maxLines: cfg.Logs.MaxLines,
		sink:     events.NopSink{},
		now:      time.Now,
	}
	if s.list == "" {
		s.list = model.DefaultTaskList
	}
	if s.maxLines <= 0 {
		s.maxLines = logtail.DefaultMaxLines
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = tasks.NewReader(
			tasks.WithTTL(cfg.TasksTTL()),
			tasks.WithList(s.list),
			tasks.WithSink(s.sink),
		)
	}
	if s.tailer == nil {
		s.tailer = logtail.New(
			logtail.WithMaxIncrementalBytes(cfg.Logs.MaxIncrementalBytes),
			logtail.WithSink(s.sink),
		)
	}
	return s
}

func (s *Service) TaskPath() string { return s.taskPath }
func (s *Service) LogPath() string  { return s.logPath }
func (s *Service) List() string     { return s.list }

// Tasks returns the current task document. Unparseable content is reported
// as the empty document; only I/O faults are returned as errors.
func (s *Service) Tasks(ctx context.Context) (model.TaskDocument, error) {
	if err := ctx.Err(); err != nil {
		return model.TaskDocument{}, err
	}
	doc, err := s.loader.Load(s.taskPath)
	if err != nil {
		if errors.Is(err, tasks.ErrMalformed) {
			return model.EmptyDocument(s.list), nil
		}
		return model.TaskDocument{}, err
	}
	return doc, nil
}

// Logs returns the last maxLines lines of the log. maxLines <= 0 selects
// the configured default.
func (s *Service) Logs(ctx context.Context, maxLines int) (model.LogWindow, error) {
	if err := ctx.Err(); err != nil {
		return model.LogWindow{}, err
	}
	if maxLines <= 0 {
		maxLines = s.maxLines
	}
	return s.tailer.Tail(s.logPath, maxLines)
}

// Status reports which files exist. Any stat failure counts as absent.
func (s *Service) Status(ctx context.Context) model.StatusSnapshot {
	return model.StatusSnapshot{
		TasksFileExists: exists(s.taskPath),
		LogFileExists:   exists(s.logPath),
		Timestamp:       s.now(),
	}
}

// Progress aggregates the task list from one task snapshot.
func (s *Service) Progress(ctx context.Context) (model.ProgressReport, error) {
	doc, err := s.Tasks(ctx)
	if err != nil {
		return model.ProgressReport{}, err
	}
	return model.BuildProgressReport(doc.Tasks(s.list)), nil
}

// FileChanged drops cached state for path after an external change.
func (s *Service) FileChanged(path string) {
	switch path {
	case s.taskPath:
		s.loader.Invalidate(path)
	case s.logPath:
		// The tailer detects growth and replacement on its own.
	default:
		return
	}
	s.sink.Record(events.Event{Type: events.EventFileChanged, Path: path})
}

// FileRemoved drops cached state for a removed or renamed file.
func (s *Service) FileRemoved(path string) {
	switch path {
	case s.taskPath:
		s.loader.Invalidate(path)
	case s.logPath:
		s.tailer.Forget(path)
	default:
		return
	}
	s.sink.Record(events.Event{Type: events.EventFileChanged, Path: path, Data: map[string]interface{}{"removed": true}})
}

// Reset drops all cached task and log state so the next snapshot reads
// both files from scratch.
func (s *Service) Reset() {
	s.loader.Invalidate(s.taskPath)
	s.tailer.Forget(s.logPath)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
