// Package logtail returns the last lines of a log file that another process
// keeps appending to.
//
// A cold read scans backwards from EOF in fixed-size chunks, so its cost is
// bounded by the size of the window rather than the file. Per path the
// tailer remembers where the last window started; when the file has only
// grown, the next call reads just the appended bytes. Either way the result
// equals splitting the whole file on '\n' and keeping the last N lines.
package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/lock"
	"github.com/msageha/pipeline_monitor/internal/model"
)

const (
	DefaultMaxLines = 100

	defaultChunkSize      = 64 << 10
	defaultMaxIncremental = 4 << 20
	maxAttempts           = 3
)

// errRaced marks reads that saw the file change underneath them.
var errRaced = errors.New("log file changed during read")

type state struct {
	info     os.FileInfo
	size     int64
	modTime  time.Time
	maxLines int
	// start is the file offset of window[0]; always a line boundary.
	start  int64
	window []byte
	lines  []string
}

func (s *state) result() model.LogWindow {
	return model.LogWindow{
		Lines:  slices.Clone(s.lines),
		Exists: true,
		Size:   s.size,
	}
}

type Tailer struct {
	chunkSize      int
	maxIncremental int64
	sink           events.Sink

	locks *lock.MutexMap
	group singleflight.Group

	mu     sync.Mutex
	states map[string]*state
}

type Option func(*Tailer)

// WithChunkSize sets the read size of the backwards scan.
func WithChunkSize(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithMaxIncrementalBytes bounds how much appended data is merged into a
// cached window; larger growth triggers a fresh backwards scan.
func WithMaxIncrementalBytes(n int64) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.maxIncremental = n
		}
	}
}

func WithSink(s events.Sink) Option {
	return func(t *Tailer) {
		if s != nil {
			t.sink = s
		}
	}
}

func New(opts ...Option) *Tailer {
	t := &Tailer{
		chunkSize:      defaultChunkSize,
		maxIncremental: defaultMaxIncremental,
		sink:           events.NopSink{},
		locks:          lock.NewMutexMap(),
		states:         make(map[string]*state),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tail returns the last maxLines lines of path, oldest first. A missing file
// yields a window with Exists false. Only genuine I/O failures are returned
// as errors; reads that race the writer are retried.
func (t *Tailer) Tail(path string, maxLines int) (model.LogWindow, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	key := path + "\x00" + strconv.Itoa(maxLines)
	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		var w model.LogWindow
		var err error
		t.locks.Do(path, func() {
			w, err = t.tail(path, maxLines)
		})
		return w, err
	})
	if err != nil {
		return model.LogWindow{}, err
	}
	w := v.(model.LogWindow)
	w.Lines = slices.Clone(w.Lines)
	return w, nil
}

// Forget drops the cached window of path.
func (t *Tailer) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, path)
}

func (t *Tailer) tail(path string, maxLines int) (model.LogWindow, error) {
	fallback := t.load(path)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		w, err := t.read(path, maxLines)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, errRaced) {
			t.sink.Record(events.Event{Type: events.EventLogReadError, Path: path, Err: err})
			return model.LogWindow{}, err
		}
		t.Forget(path)
		t.sink.Record(events.Event{
			Type: events.EventLogReadRetry,
			Path: path,
			Err:  err,
			Data: map[string]interface{}{"attempt": attempt},
		})
	}

	// The writer kept the file moving for every attempt. Serve the last
	// window we had; the next poll will catch up.
	if fallback != nil && fallback.maxLines == maxLines {
		return fallback.result(), nil
	}
	return model.LogWindow{Lines: []string{}, Exists: true}, nil
}

func (t *Tailer) load(path string) *state {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[path]
}

func (t *Tailer) store(path string, s *state) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[path] = s
}

func (t *Tailer) read(path string, maxLines int) (model.LogWindow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if t.load(path) != nil {
				t.Forget(path)
			}
			t.sink.Record(events.Event{Type: events.EventLogMissing, Path: path})
			return model.LogWindow{Lines: []string{}}, nil
		}
		return model.LogWindow{}, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.LogWindow{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return model.LogWindow{}, fmt.Errorf("log file %s is a directory", path)
	}
	size := info.Size()

	prev := t.load(path)
	sameFile := prev != nil && os.SameFile(prev.info, info)
	reusable := sameFile && prev.maxLines == maxLines

	var next *state
	switch {
	case reusable && size == prev.size && info.ModTime().Equal(prev.modTime):
		return prev.result(), nil
	case reusable && size > prev.size && size-prev.size <= t.maxIncremental:
		next, err = t.extend(path, f, prev, info)
	default:
		if prev != nil && (!sameFile || size < prev.size) {
			t.recordRotated(path, prev, size)
		}
		next, err = t.scan(f, info, maxLines)
	}
	if err != nil {
		return model.LogWindow{}, err
	}

	t.store(path, next)
	return next.result(), nil
}

// extend merges the bytes appended since prev into prev's window. If prev's
// window no longer matches the file, the file was rewritten and a full scan
// runs instead.
func (t *Tailer) extend(path string, f *os.File, prev *state, info os.FileInfo) (*state, error) {
	intact, err := matchesWindow(f, prev)
	if err != nil {
		return nil, err
	}
	if !intact {
		t.recordRotated(path, prev, info.Size())
		return t.scan(f, info, prev.maxLines)
	}

	grown := make([]byte, info.Size()-prev.size)
	if err := readFullAt(f, grown, prev.size); err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(prev.window)+len(grown))
	data = append(data, prev.window...)
	data = append(data, grown...)
	return newState(info, prev.start, data, prev.maxLines), nil
}

// scan reads backwards from EOF until it has seen more than maxLines line
// breaks or reached the start of the file.
func (t *Tailer) scan(f *os.File, info os.FileInfo, maxLines int) (*state, error) {
	pos := info.Size()
	var buf []byte
	breaks := 0

	for pos > 0 && breaks <= maxLines {
		n := int64(t.chunkSize)
		if pos < n {
			n = pos
		}
		pos -= n

		chunk := make([]byte, n, n+int64(len(buf)))
		if err := readFullAt(f, chunk, pos); err != nil {
			return nil, err
		}
		breaks += bytes.Count(chunk, []byte{'\n'})
		buf = append(chunk, buf...)
	}

	// Unless the scan reached offset 0, the first bytes belong to a line
	// that started before pos.
	cut := 0
	if pos > 0 {
		cut = bytes.IndexByte(buf, '\n') + 1
	}
	return newState(info, pos+int64(cut), buf[cut:], maxLines), nil
}

func (t *Tailer) recordRotated(path string, prev *state, size int64) {
	t.sink.Record(events.Event{
		Type: events.EventLogRotated,
		Path: path,
		Data: map[string]interface{}{
			"old_size": prev.size,
			"new_size": size,
		},
	})
}

// newState keeps the last maxLines lines of data, which starts at file
// offset start on a line boundary.
func newState(info os.FileInfo, start int64, data []byte, maxLines int) *state {
	cut, lines := lastLines(data, maxLines)
	return &state{
		info:     info,
		size:     info.Size(),
		modTime:  info.ModTime(),
		maxLines: maxLines,
		start:    start + int64(cut),
		window:   bytes.Clone(data[cut:]),
		lines:    lines,
	}
}

// matchesWindow reports whether the file still holds prev's window at the
// same offset, including the line break that preceded it.
func matchesWindow(f *os.File, prev *state) (bool, error) {
	off := prev.start
	want := prev.window
	if off > 0 {
		off--
		want = make([]byte, 0, len(prev.window)+1)
		want = append(want, '\n')
		want = append(want, prev.window...)
	}
	if len(want) == 0 {
		return true, nil
	}

	got := make([]byte, len(want))
	if err := readFullAt(f, got, off); err != nil {
		if errors.Is(err, errRaced) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(got, want), nil
}

// readFullAt fills buf from offset off. A short read means the file shrank
// after it was stat'ed.
func readFullAt(f *os.File, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: read %d of %d bytes at offset %d", errRaced, n, len(buf), off)
	}
	return fmt.Errorf("read log file: %w", err)
}
