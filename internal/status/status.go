// Package status prints the pipeline snapshot for the status and tail
// commands.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/msageha/pipeline_monitor/internal/lock"
	"github.com/msageha/pipeline_monitor/internal/model"
	"github.com/msageha/pipeline_monitor/internal/uds"
)

// Snapshotter is the part of snapshot.Service the commands read from.
type Snapshotter interface {
	Status(ctx context.Context) model.StatusSnapshot
	Progress(ctx context.Context) (model.ProgressReport, error)
	Logs(ctx context.Context, maxLines int) (model.LogWindow, error)
}

type PipelineStatus struct {
	Monitor   MonitorStatus        `json:"monitor"`
	TasksFile FileStatus           `json:"tasks_file"`
	LogFile   FileStatus           `json:"log_file"`
	Progress  model.ProgressReport `json:"progress"`
}

type MonitorStatus struct {
	Running bool   `json:"running"`
	Pid     int    `json:"pid,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Started string `json:"started,omitempty"`
}

type FileStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Paths names the files reported on.
type Paths struct {
	Tasks  string
	Log    string
	Lock   string
	Socket string
}

// Collect gathers the status from snap and the monitor lock file.
func Collect(ctx context.Context, snap Snapshotter, paths Paths) (PipelineStatus, error) {
	progress, err := snap.Progress(ctx)
	if err != nil {
		return PipelineStatus{}, err
	}
	st := snap.Status(ctx)

	return PipelineStatus{
		Monitor:   checkMonitor(paths),
		TasksFile: FileStatus{Path: paths.Tasks, Exists: st.TasksFileExists},
		LogFile:   FileStatus{Path: paths.Log, Exists: st.LogFileExists},
		Progress:  progress,
	}, nil
}

// Run collects the status and prints it to w.
func Run(ctx context.Context, w io.Writer, snap Snapshotter, paths Paths, jsonOutput bool) error {
	status, err := Collect(ctx, snap, paths)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatus(w, status)
	return nil
}

// checkMonitor asks the running server over its control socket and falls
// back to the pid in the lock file.
func checkMonitor(paths Paths) MonitorStatus {
	if paths.Socket != "" {
		client := uds.NewClient(paths.Socket)
		client.SetTimeout(time.Second)
		if ping, err := client.Ping(); err == nil {
			return MonitorStatus{Running: true, Pid: ping.Pid, Addr: ping.Addr, Started: ping.Started}
		}
	}
	return checkLock(paths.Lock)
}

// checkLock reports whether a live process holds the lock file.
func checkLock(lockPath string) MonitorStatus {
	if lockPath == "" {
		return MonitorStatus{}
	}
	pid, err := lock.ReadPID(lockPath)
	if err != nil || pid <= 0 {
		return MonitorStatus{}
	}
	if !processAlive(pid) {
		return MonitorStatus{}
	}
	return MonitorStatus{Running: true, Pid: pid}
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func printStatus(w io.Writer, s PipelineStatus) {
	switch {
	case s.Monitor.Running && s.Monitor.Addr != "":
		fmt.Fprintf(w, "Monitor: running (pid %d, http://%s)\n", s.Monitor.Pid, s.Monitor.Addr)
	case s.Monitor.Running:
		fmt.Fprintf(w, "Monitor: running (pid %d)\n", s.Monitor.Pid)
	default:
		fmt.Fprintln(w, "Monitor: stopped")
	}

	fmt.Fprintln(w, "\nFiles:")
	fmt.Fprintf(w, "  %-6s  %-7s  %s\n", "tasks", existence(s.TasksFile.Exists), s.TasksFile.Path)
	fmt.Fprintf(w, "  %-6s  %-7s  %s\n", "log", existence(s.LogFile.Exists), s.LogFile.Path)

	stats := s.Progress.Stats
	fmt.Fprintf(w, "\nProgress: %d%% (%d/%d subtasks, %d tasks)\n",
		stats.ProgressPercent, stats.CompletedSubtasks, stats.TotalSubtasks, stats.TotalTasks)

	if len(s.Progress.Tasks) == 0 {
		fmt.Fprintln(w, "\nTasks: none")
		return
	}
	fmt.Fprintln(w, "\nTasks:")
	fmt.Fprintf(w, "  %-6s  %-11s  %8s  %s\n", "ID", "STATUS", "SUBTASKS", "NAME")
	for _, t := range s.Progress.Tasks {
		fmt.Fprintf(w, "  %-6s  %-11s  %8s  %s\n",
			t.ID, t.EffectiveStatus, fmt.Sprintf("%d/%d", t.CompletedSubtasks, t.Subtasks), t.Name)
	}
}

func existence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
