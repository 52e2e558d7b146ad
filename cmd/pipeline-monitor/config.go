package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/msageha/pipeline_monitor/internal/model"
	"github.com/msageha/pipeline_monitor/internal/setup"
)

// findProjectRoot walks up from dir to the nearest directory containing
// .taskmaster/. It returns "" when there is none.
func findProjectRoot(dir string) string {
	for {
		candidate := filepath.Join(dir, setup.StateDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then command-line overrides.
func loadConfig(o *options, portSet bool) (model.Config, error) {
	root, err := resolveProjectRoot(o.projectDir)
	if err != nil {
		return model.Config{}, err
	}

	cfg := model.DefaultConfig()

	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = setup.ConfigPath(root)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return model.Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return model.Config{}, fmt.Errorf("read config: %w", err)
	}

	switch {
	case cfg.Files.ProjectRoot == "":
		cfg.Files.ProjectRoot = root
	case !filepath.IsAbs(cfg.Files.ProjectRoot):
		cfg.Files.ProjectRoot = filepath.Join(root, cfg.Files.ProjectRoot)
	}

	if portSet {
		cfg.Server.Port = o.port
	}
	// Paths given on the command line are relative to the working directory.
	if o.taskFile != "" {
		if cfg.Files.TaskFile, err = filepath.Abs(o.taskFile); err != nil {
			return model.Config{}, fmt.Errorf("resolve task file: %w", err)
		}
	}
	if o.logFile != "" {
		if cfg.Files.LogFile, err = filepath.Abs(o.logFile); err != nil {
			return model.Config{}, fmt.Errorf("resolve log file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func resolveProjectRoot(flagDir string) (string, error) {
	if flagDir != "" {
		abs, err := filepath.Abs(flagDir)
		if err != nil {
			return "", fmt.Errorf("resolve project dir: %w", err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if root := findProjectRoot(cwd); root != "" {
		return root, nil
	}
	return cwd, nil
}
