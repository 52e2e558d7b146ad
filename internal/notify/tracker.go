package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/msageha/pipeline_monitor/internal/model"
)

// Message is one notification derived from a progress change.
type Message struct {
	Title string
	Body  string
}

// Transitions lists the notifications for moving from prev to next: one per
// task that became complete, plus one when the whole list completes.
func Transitions(prev, next model.ProgressReport) []Message {
	before := make(map[model.TaskID]model.Status, len(prev.Tasks))
	for _, t := range prev.Tasks {
		before[t.ID] = t.EffectiveStatus
	}

	var msgs []Message
	for _, t := range next.Tasks {
		old, seen := before[t.ID]
		if !seen || old == model.StatusComplete || t.EffectiveStatus != model.StatusComplete {
			continue
		}
		msgs = append(msgs, Message{
			Title: "Task complete",
			Body:  fmt.Sprintf("Task %s: %s", t.ID, t.Name),
		})
	}

	if allComplete(next) && !allComplete(prev) && len(prev.Tasks) > 0 {
		msgs = append(msgs, Message{
			Title: "Pipeline complete",
			Body:  fmt.Sprintf("All %d tasks complete", next.Stats.TotalTasks),
		})
	}
	return msgs
}

func allComplete(r model.ProgressReport) bool {
	if len(r.Tasks) == 0 {
		return false
	}
	for _, t := range r.Tasks {
		if t.EffectiveStatus != model.StatusComplete {
			return false
		}
	}
	return true
}

// Tracker remembers the last observed report and notifies on transitions.
// The first observation only sets the baseline. An empty report after a
// non-empty one is treated as a degraded read and skipped.
type Tracker struct {
	notifier Notifier
	logger   *zap.Logger
	prev     *model.ProgressReport
}

func NewTracker(n Notifier, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{notifier: n, logger: logger.Named("notify")}
}

// Observe compares report with the previous one and sends the resulting
// notifications. It returns how many were sent.
func (t *Tracker) Observe(report model.ProgressReport) int {
	prev := t.prev
	if prev != nil && len(prev.Tasks) > 0 && len(report.Tasks) == 0 {
		t.logger.Debug("empty progress report skipped")
		return 0
	}
	t.prev = &report
	if prev == nil {
		return 0
	}

	sent := 0
	for _, m := range Transitions(*prev, report) {
		if err := t.notifier.Notify(m.Title, m.Body); err != nil {
			t.logger.Warn("notification failed", zap.String("title", m.Title), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
