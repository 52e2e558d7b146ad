// Package notify sends desktop notifications when tasks in the watched
// pipeline finish.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop notifies through osascript on macOS and notify-send elsewhere.
type Desktop struct{}

func (Desktop) Notify(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", "--app-name=pipeline-monitor", title, message)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
