// Package tasks reads the task document the pipeline writes.
//
// The pipeline rewrites tasks.json without coordinating with readers, so a
// read can observe a half-written file. That surfaces here as ErrMalformed
// and is expected to clear up on the next poll.
package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/model"
)

// ErrMalformed matches every error returned for content that did not parse.
var ErrMalformed = errors.New("malformed task document")

type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Load reads the document at path using the default list name.
func Load(path string) (model.TaskDocument, error) {
	return LoadList(path, model.DefaultTaskList)
}

// LoadList reads the document at path. A missing file yields the empty
// document and no error.
func LoadList(path, list string) (model.TaskDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.EmptyDocument(list), nil
		}
		return model.TaskDocument{}, fmt.Errorf("read task file: %w", err)
	}

	doc, err := model.DecodeTaskDocument(data, list)
	if err != nil {
		return model.TaskDocument{}, &MalformedError{Path: path, Err: err}
	}
	return doc, nil
}

type cacheEntry struct {
	size     int64
	modTime  time.Time
	doc      model.TaskDocument
	loadedAt time.Time
}

// Reader loads task documents, reusing a parsed document while the file is
// unchanged and younger than the TTL. Concurrent loads of one path share a
// single read. Returned documents are shared and must not be modified.
type Reader struct {
	list string
	ttl  time.Duration
	sink events.Sink
	now  func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type Option func(*Reader)

// WithTTL bounds how long a parsed document is reused. Zero disables reuse.
func WithTTL(d time.Duration) Option {
	return func(r *Reader) { r.ttl = d }
}

func WithList(name string) Option {
	return func(r *Reader) {
		if name != "" {
			r.list = name
		}
	}
}

func WithSink(s events.Sink) Option {
	return func(r *Reader) {
		if s != nil {
			r.sink = s
		}
	}
}

func NewReader(opts ...Option) *Reader {
	r := &Reader{
		list:  model.DefaultTaskList,
		sink:  events.NopSink{},
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) List() string {
	return r.list
}

// Load returns the document at path. Absence is not an error; unparseable
// content returns an error matching ErrMalformed; anything else is an I/O
// failure.
func (r *Reader) Load(path string) (model.TaskDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.Invalidate(path)
			r.sink.Record(events.Event{Type: events.EventTasksMissing, Path: path})
			return model.EmptyDocument(r.list), nil
		}
		err = fmt.Errorf("stat task file: %w", err)
		r.sink.Record(events.Event{Type: events.EventTasksReadError, Path: path, Err: err})
		return model.TaskDocument{}, err
	}
	if info.IsDir() {
		err := fmt.Errorf("task file %s is a directory", path)
		r.sink.Record(events.Event{Type: events.EventTasksReadError, Path: path, Err: err})
		return model.TaskDocument{}, err
	}

	if doc, ok := r.cached(path, info); ok {
		return doc, nil
	}

	v, err, _ := r.group.Do(path, func() (interface{}, error) {
		doc, err := LoadList(path, r.list)
		if err != nil {
			return nil, err
		}
		r.store(path, info, doc)
		return doc, nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			r.sink.Record(events.Event{Type: events.EventTasksMalformed, Path: path, Err: err})
		} else {
			r.sink.Record(events.Event{Type: events.EventTasksReadError, Path: path, Err: err})
		}
		return model.TaskDocument{}, err
	}
	return v.(model.TaskDocument), nil
}

// Invalidate drops the cached document of path.
func (r *Reader) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, path)
}

func (r *Reader) cached(path string, info os.FileInfo) (model.TaskDocument, bool) {
	if r.ttl <= 0 {
		return model.TaskDocument{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[path]
	if !ok {
		return model.TaskDocument{}, false
	}
	if entry.size != info.Size() || !entry.modTime.Equal(info.ModTime()) || r.now().Sub(entry.loadedAt) >= r.ttl {
		delete(r.cache, path)
		return model.TaskDocument{}, false
	}
	return entry.doc, true
}

func (r *Reader) store(path string, info os.FileInfo, doc model.TaskDocument) {
	if r.ttl <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[path] = cacheEntry{
		size:     info.Size(),
		modTime:  info.ModTime(),
		doc:      doc,
		loadedAt: r.now(),
	}
}
