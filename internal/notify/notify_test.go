package notify

import (
	"errors"
	"testing"

	"github.com/msageha/pipeline_monitor/internal/model"
)

type recorder struct {
	msgs []Message
	err  error
}

func (r *recorder) Notify(title, body string) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, Message{Title: title, Body: body})
	return nil
}

func report(statuses ...model.Status) model.ProgressReport {
	var r model.ProgressReport
	for i, s := range statuses {
		r.Tasks = append(r.Tasks, model.TaskProgress{
			ID:              model.NumericID(i + 1),
			Name:            "task",
			EffectiveStatus: s,
		})
	}
	r.Stats.TotalTasks = len(statuses)
	return r
}

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{`say "hello"`, `say \"hello\"`},
		{`path\to\file`, `path\\to\\file`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := escapeAppleScript(tt.input); got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name   string
		prev   model.ProgressReport
		next   model.ProgressReport
		titles []string
	}{
		{"no change", report(model.StatusPending), report(model.StatusPending), nil},
		{"task completes", report(model.StatusInProgress, model.StatusPending), report(model.StatusComplete, model.StatusPending), []string{"Task complete"}},
		{"last task completes", report(model.StatusComplete, model.StatusInProgress), report(model.StatusComplete, model.StatusComplete), []string{"Task complete", "Pipeline complete"}},
		{"new task already complete", report(model.StatusPending), report(model.StatusPending, model.StatusComplete), nil},
		{"from empty list", report(), report(model.StatusComplete), nil},
		{"regression", report(model.StatusComplete), report(model.StatusPending), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var titles []string
			for _, m := range Transitions(tt.prev, tt.next) {
				titles = append(titles, m.Title)
			}
			if len(titles) != len(tt.titles) {
				t.Fatalf("titles = %v, want %v", titles, tt.titles)
			}
			for i := range titles {
				if titles[i] != tt.titles[i] {
					t.Errorf("titles = %v, want %v", titles, tt.titles)
				}
			}
		})
	}
}

func TestTracker_BaselineThenNotify(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec, nil)

	if n := tr.Observe(report(model.StatusComplete)); n != 0 {
		t.Fatalf("baseline sent %d notifications", n)
	}
	if n := tr.Observe(report(model.StatusComplete, model.StatusInProgress)); n != 0 {
		t.Fatalf("sent %d, want 0", n)
	}
	if n := tr.Observe(report(model.StatusComplete, model.StatusComplete)); n != 2 {
		t.Fatalf("sent %d, want 2", n)
	}
	if rec.msgs[0].Body != "Task 2: task" {
		t.Errorf("body = %q", rec.msgs[0].Body)
	}
}

func TestTracker_NotifierError(t *testing.T) {
	rec := &recorder{err: errors.New("no display")}
	tr := NewTracker(rec, nil)
	tr.Observe(report(model.StatusPending))
	if n := tr.Observe(report(model.StatusComplete)); n != 0 {
		t.Errorf("sent %d with failing notifier", n)
	}
}

func TestTracker_EmptyReportKeepsBaseline(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec, nil)

	tr.Observe(report(model.StatusComplete, model.StatusInProgress))
	if n := tr.Observe(model.ProgressReport{Tasks: []model.TaskProgress{}}); n != 0 {
		t.Fatalf("empty report sent %d", n)
	}
	if n := tr.Observe(report(model.StatusComplete, model.StatusComplete)); n != 2 {
		t.Fatalf("sent %d, want 2", n)
	}
	if rec.msgs[0].Title != "Task complete" || rec.msgs[1].Title != "Pipeline complete" {
		t.Errorf("msgs = %+v", rec.msgs)
	}
}
