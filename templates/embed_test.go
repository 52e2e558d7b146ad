package templates

import (
	"io/fs"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/msageha/pipeline_monitor/internal/model"
)

func TestDefaultConfigMatchesModelDefaults(t *testing.T) {
	data, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}

	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse monitor.yaml: %v", err)
	}
	want := model.DefaultConfig()
	if cfg != want {
		t.Errorf("monitor.yaml = %+v\nwant %+v", cfg, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestAssetsEmbedded(t *testing.T) {
	for _, name := range []string{"dashboard.html", "static/dashboard.css", "static/dashboard.js"} {
		data, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	page, _ := fs.ReadFile(FS, "dashboard.html")
	if !strings.Contains(string(page), "/static/dashboard.js") {
		t.Error("dashboard.html does not load the script")
	}
}

func TestDashboardScriptReadsTasksOnce(t *testing.T) {
	script, err := fs.ReadFile(FS, "static/dashboard.js")
	if err != nil {
		t.Fatal(err)
	}
	src := string(script)
	if !strings.Contains(src, "fetch('/api/tasks')") {
		t.Error("dashboard.js does not poll /api/tasks")
	}
	if strings.Contains(src, "/api/progress") {
		t.Error("dashboard.js mixes /api/progress into the task refresh")
	}
}
