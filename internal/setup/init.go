// Package setup creates the monitor's configuration in a project.
package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/pipeline_monitor/internal/model"
	atomicyaml "github.com/msageha/pipeline_monitor/internal/yaml"
	"github.com/msageha/pipeline_monitor/templates"
)

const (
	// StateDir is the directory the pipeline keeps its files in.
	StateDir   = ".taskmaster"
	ConfigName = "monitor.yaml"
)

// ErrConfigExists is returned when the configuration is already present.
var ErrConfigExists = errors.New("configuration already exists")

// ConfigPath returns where the configuration of projectDir lives.
func ConfigPath(projectDir string) string {
	return filepath.Join(projectDir, StateDir, ConfigName)
}

// Run writes the default monitor.yaml under projectDir/.taskmaster/ and
// returns its path. An existing file is left alone unless force is set, in
// which case the old one is kept as monitor.yaml.bak.
func Run(projectDir string, force bool) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	if info, err := os.Stat(absDir); err != nil {
		return "", fmt.Errorf("project dir: %w", err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("project dir %s is not a directory", absDir)
	}

	path := ConfigPath(absDir)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s: %w", path, ErrConfigExists)
	}

	for _, d := range []string{StateDir, filepath.Join(StateDir, "tasks")} {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	data, err := templates.DefaultConfig()
	if err != nil {
		return "", fmt.Errorf("read config template: %w", err)
	}
	if err := atomicyaml.WriteFileAtomic(path, data, validateConfig); err != nil {
		return "", fmt.Errorf("write %s: %w", ConfigName, err)
	}
	return path, nil
}

// validateConfig checks that content is a usable monitor configuration.
func validateConfig(content []byte) error {
	cfg := model.DefaultConfig()
	if err := yamlv3.Unmarshal(content, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}
