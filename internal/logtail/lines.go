package logtail

import (
	"strings"
)

// SplitLines splits data on '\n'. A single trailing newline does not start
// another line; an unterminated final segment is a line. Empty input has no
// lines.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	body := data
	if body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}
	return strings.Split(string(body), "\n")
}

// lastLines returns the last maxLines lines of data and the byte offset in
// data where the first of them starts.
func lastLines(data []byte, maxLines int) (int, []string) {
	if len(data) == 0 {
		return 0, []string{}
	}
	body := data
	if body[len(body)-1] == '\n' {
		body = body[:len(body)-1]
	}

	cut := 0
	count := 0
	for i := len(body) - 1; i >= 0; i-- {
		if body[i] != '\n' {
			continue
		}
		count++
		if count == maxLines {
			cut = i + 1
			break
		}
	}
	return cut, strings.Split(string(body[cut:]), "\n")
}

// Join renders lines as newline-terminated text.
func Join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
