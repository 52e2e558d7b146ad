// Package templates embeds the dashboard assets and the default
// configuration file.
package templates

import "embed"

//go:embed dashboard.html monitor.yaml static
var FS embed.FS

// DefaultConfig returns the monitor.yaml written by init.
func DefaultConfig() ([]byte, error) {
	return FS.ReadFile("monitor.yaml")
}
