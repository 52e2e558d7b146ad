package server

import (
	"sort"
	"sync"
	"time"

	"github.com/msageha/pipeline_monitor/internal/events"
)

// Diagnostics counts diagnostic events by type for /api/diagnostics.
type Diagnostics struct {
	mu      sync.Mutex
	started time.Time
	counts  map[events.EventType]int
	last    map[events.EventType]events.Event
}

type DiagnosticCount struct {
	Type      events.EventType `json:"type"`
	Count     int              `json:"count"`
	LastSeen  time.Time        `json:"last_seen"`
	LastPath  string           `json:"last_path,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

type DiagnosticsSnapshot struct {
	Since  time.Time         `json:"since"`
	Events []DiagnosticCount `json:"events"`
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		started: time.Now().UTC(),
		counts:  make(map[events.EventType]int),
		last:    make(map[events.EventType]events.Event),
	}
}

// Record implements events.Sink.
func (d *Diagnostics) Record(e events.Event) {
	e = events.Stamp(e)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[e.Type]++
	d.last[e.Type] = e
}

// Snapshot returns the counts sorted by event type.
func (d *Diagnostics) Snapshot() DiagnosticsSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := DiagnosticsSnapshot{
		Since:  d.started,
		Events: make([]DiagnosticCount, 0, len(d.counts)),
	}
	for typ, n := range d.counts {
		last := d.last[typ]
		c := DiagnosticCount{
			Type:     typ,
			Count:    n,
			LastSeen: last.Timestamp,
			LastPath: last.Path,
		}
		if last.Err != nil {
			c.LastError = last.Err.Error()
		}
		snap.Events = append(snap.Events, c)
	}
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].Type < snap.Events[j].Type })
	return snap
}
