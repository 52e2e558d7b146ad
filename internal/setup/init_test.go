package setup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/msageha/pipeline_monitor/internal/model"
)

func TestRun_WritesConfig(t *testing.T) {
	dir := t.TempDir()

	path, err := Run(dir, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if path != filepath.Join(dir, ".taskmaster", "monitor.yaml") {
		t.Errorf("path: got %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg := model.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("server.port: got %d, want 8888", cfg.Server.Port)
	}
	if cfg.Logs.MaxLines != 100 {
		t.Errorf("logs.max_lines: got %d, want 100", cfg.Logs.MaxLines)
	}
	if cfg.Files.TaskFile != filepath.Join(".taskmaster", "tasks", "tasks.json") {
		t.Errorf("files.task_file: got %q", cfg.Files.TaskFile)
	}
}

func TestRun_CreatesTasksDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := Run(dir, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ".taskmaster", "tasks"))
	if err != nil {
		t.Fatalf("tasks dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("tasks is not a directory")
	}
}

func TestRun_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Run(dir, false)
	if !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "server:\n  port: 9999\n" {
		t.Errorf("existing config modified: %q", data)
	}
}

func TestRun_ForceKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Run(dir, true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(bak) != "server:\n  port: 9999\n" {
		t.Errorf("backup content: %q", bak)
	}
}

func TestRun_MissingProjectDir(t *testing.T) {
	if _, err := Run(filepath.Join(t.TempDir(), "absent"), false); err == nil {
		t.Fatal("expected error for missing project dir")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig([]byte("logs:\n  max_lines: 0\n")); err == nil {
		t.Error("expected error for max_lines 0")
	}
	if err := validateConfig([]byte("server: [")); err == nil {
		t.Error("expected parse error")
	}
	if err := validateConfig([]byte("server:\n  port: 9000\n")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
