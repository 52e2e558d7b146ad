package model

// ProgressStats aggregates a task list.
type ProgressStats struct {
	TotalTasks        int `json:"total_tasks"`
	TotalSubtasks     int `json:"total_subtasks"`
	CompletedSubtasks int `json:"completed_subtasks"`
	ProgressPercent   int `json:"progress_percent"`
}

// TaskProgress is the per-task line of a ProgressReport.
type TaskProgress struct {
	ID                TaskID `json:"id"`
	Name              string `json:"name"`
	Status            Status `json:"status"`
	EffectiveStatus   Status `json:"effective_status"`
	Subtasks          int    `json:"subtasks"`
	CompletedSubtasks int    `json:"completed_subtasks"`
}

type ProgressReport struct {
	Stats ProgressStats  `json:"stats"`
	Tasks []TaskProgress `json:"tasks"`
}

// EffectiveStatus rolls a task's subtasks up into a single status.
// A task without subtasks reports its own status.
func EffectiveStatus(t Task) Status {
	if len(t.Subtasks) == 0 {
		return t.Status.OrDefault()
	}

	allComplete := true
	anyInProgress := false
	for _, st := range t.Subtasks {
		if st.Status != StatusComplete {
			allComplete = false
		}
		if st.Status == StatusInProgress {
			anyInProgress = true
		}
	}

	switch {
	case allComplete:
		return StatusComplete
	case anyInProgress:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// Aggregate computes ProgressStats over tasks in list order.
func Aggregate(tasks []Task) ProgressStats {
	stats := ProgressStats{TotalTasks: len(tasks)}
	for _, t := range tasks {
		stats.TotalSubtasks += len(t.Subtasks)
		stats.CompletedSubtasks += countComplete(t.Subtasks)
	}
	stats.ProgressPercent = Percent(stats.CompletedSubtasks, stats.TotalSubtasks)
	return stats
}

// Percent returns done/total as a whole percentage, rounding halves up.
// A zero total yields 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (total * 2)
}

// BuildProgressReport aggregates tasks and lists each task's effective status.
func BuildProgressReport(tasks []Task) ProgressReport {
	report := ProgressReport{
		Stats: Aggregate(tasks),
		Tasks: make([]TaskProgress, 0, len(tasks)),
	}
	for _, t := range tasks {
		report.Tasks = append(report.Tasks, TaskProgress{
			ID:                t.ID,
			Name:              t.Name,
			Status:            t.Status.OrDefault(),
			EffectiveStatus:   EffectiveStatus(t),
			Subtasks:          len(t.Subtasks),
			CompletedSubtasks: countComplete(t.Subtasks),
		})
	}
	return report
}

func countComplete(subtasks []Subtask) int {
	n := 0
	for _, st := range subtasks {
		if st.Status == StatusComplete {
			n++
		}
	}
	return n
}
