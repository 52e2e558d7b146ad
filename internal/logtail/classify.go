package logtail

import "strings"

// Level is the display severity of a log line.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelPlain   Level = "plain"
)

var levelMarkers = []struct {
	level   Level
	markers []string
}{
	{LevelError, []string{"ERROR", "❌"}},
	{LevelWarning, []string{"WARNING", "⚠️"}},
	{LevelSuccess, []string{"SUCCESS", "✅"}},
	{LevelInfo, []string{"INFO", "ℹ️"}},
}

// Classify picks the first matching level in error, warning, success, info order.
func Classify(line string) Level {
	for _, lm := range levelMarkers {
		for _, m := range lm.markers {
			if strings.Contains(line, m) {
				return lm.level
			}
		}
	}
	return LevelPlain
}
