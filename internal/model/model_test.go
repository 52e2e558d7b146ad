package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

const scenarioDoc = `{
  "master": {
    "tasks": [
      {"id": 1, "name": "A", "subtasks": [
        {"id": 1, "title": "x", "status": "complete"},
        {"id": 2, "title": "y", "status": "complete"}
      ]},
      {"id": 2, "name": "B", "subtasks": []}
    ]
  }
}`

func TestDecodeTaskDocument_Defaults(t *testing.T) {
	doc, err := DecodeTaskDocument([]byte(scenarioDoc), DefaultTaskList)
	if err != nil {
		t.Fatalf("DecodeTaskDocument: %v", err)
	}

	tasks := doc.Tasks(DefaultTaskList)
	if len(tasks) != 2 {
		t.Fatalf("tasks: got %d, want 2", len(tasks))
	}
	if tasks[0].Status != StatusPending {
		t.Errorf("task A status: got %q, want pending", tasks[0].Status)
	}
	if tasks[1].Subtasks == nil {
		t.Error("task B subtasks should be an empty slice, got nil")
	}
	if got := tasks[0].Subtasks[1].Title; got != "y" {
		t.Errorf("subtask title: got %q, want y", got)
	}
}

func TestDecodeTaskDocument_MissingFields(t *testing.T) {
	doc, err := DecodeTaskDocument([]byte(`{"master":{"tasks":[{"id":"7","name":"n","subtasks":[{"id":1,"title":"t"}]},{"id":3}]}}`), DefaultTaskList)
	if err != nil {
		t.Fatalf("DecodeTaskDocument: %v", err)
	}

	want := []Task{
		{ID: StringID("7"), Name: "n", Status: StatusPending, Subtasks: []Subtask{
			{ID: NumericID(1), Title: "t", Status: StatusPending},
		}},
		{ID: NumericID(3), Status: StatusPending, Subtasks: []Subtask{}},
	}
	if diff := cmp.Diff(want, doc.Tasks(DefaultTaskList), cmp.AllowUnexported(TaskID{})); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTaskDocument_PrimaryListAbsent(t *testing.T) {
	for _, input := range []string{`{}`, `null`, `{"feature-x":{"tasks":[{"id":1,"name":"f"}]}}`, `{"master":null}`} {
		t.Run(input, func(t *testing.T) {
			doc, err := DecodeTaskDocument([]byte(input), DefaultTaskList)
			if err != nil {
				t.Fatalf("DecodeTaskDocument(%s): %v", input, err)
			}
			if n := len(doc.Tasks(DefaultTaskList)); n != 0 {
				t.Errorf("primary list: got %d tasks, want 0", n)
			}
			if _, ok := doc.Lists[DefaultTaskList]; !ok {
				t.Error("primary list should be present after decoding")
			}
		})
	}
}

func TestDecodeTaskDocument_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"truncated", `{"master":{"tasks":[{"id":1,"na`},
		{"array root", `[1,2]`},
		{"tasks not array", `{"master":{"tasks":{"id":1}}}`},
		{"bad status type", `{"master":{"tasks":[{"id":1,"status":5}]}}`},
		{"bad id type", `{"master":{"tasks":[{"id":true}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTaskDocument([]byte(tt.input), DefaultTaskList); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestDecodeTaskDocument_SkipsForeignTopLevelValues(t *testing.T) {
	doc, err := DecodeTaskDocument([]byte(`{"version":3,"master":{"tasks":[{"id":1,"name":"a"}]},"other":{"tasks":[]}}`), DefaultTaskList)
	if err != nil {
		t.Fatalf("DecodeTaskDocument: %v", err)
	}
	if _, ok := doc.Lists["version"]; ok {
		t.Error("non-list value should be dropped")
	}
	if _, ok := doc.Lists["other"]; !ok {
		t.Error("secondary list should be kept")
	}
}

func TestTaskDocument_MarshalDropsUnknownFields(t *testing.T) {
	doc, err := DecodeTaskDocument([]byte(`{"master":{"tasks":[{"id":1,"name":"a","details":"long","subtasks":[{"id":"1.1","title":"s","status":"in-progress","extra":true}]}],"metadata":{"created":"x"}}}`), DefaultTaskList)
	if err != nil {
		t.Fatalf("DecodeTaskDocument: %v", err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"master":{"tasks":[{"id":1,"name":"a","status":"pending","subtasks":[{"id":"1.1","title":"s","status":"in-progress"}]}]}}`
	if string(out) != want {
		t.Errorf("Marshal:\n got %s\nwant %s", out, want)
	}
}

func TestEmptyDocument_JSON(t *testing.T) {
	out, err := json.Marshal(EmptyDocument(DefaultTaskList))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"master":{"tasks":[]}}` {
		t.Errorf("got %s", out)
	}
}

func TestTaskID_RoundTrip(t *testing.T) {
	tests := []struct {
		input string
		str   string
	}{
		{`1`, "1"},
		{`"1.2"`, "1.2"},
		{`12.5`, "12.5"},
		{`null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var id TaskID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if id.String() != tt.str {
				t.Errorf("String() = %q, want %q", id.String(), tt.str)
			}
			out, err := json.Marshal(id)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(out) != tt.input {
				t.Errorf("Marshal = %s, want %s", out, tt.input)
			}
		})
	}
}

func TestStatusSnapshot_JSON(t *testing.T) {
	s := StatusSnapshot{
		TasksFileExists: true,
		LogFileExists:   false,
		Timestamp:       time.Unix(1700000000, 500_000_000),
	}
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"tasksFileExists":true,"logFileExists":false,"timestamp":1700000000.5}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestConfig_YAMLOverlaysDefaults(t *testing.T) {
	cfg := DefaultConfig()
	data := []byte("server:\n  port: 9000\nlogs:\n  max_lines: 50\n")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("server.port: got %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("server.host default lost: %q", cfg.Server.Host)
	}
	if cfg.Logs.MaxLines != 50 {
		t.Errorf("logs.max_lines: got %d, want 50", cfg.Logs.MaxLines)
	}
	if cfg.Logs.MaxLinesLimit != 1000 {
		t.Errorf("logs.max_lines_limit default lost: %d", cfg.Logs.MaxLinesLimit)
	}
	if !cfg.Cache.Watch {
		t.Error("cache.watch default lost")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero lines", func(c *Config) { c.Logs.MaxLines = 0 }, "logs.max_lines"},
		{"limit below default", func(c *Config) { c.Logs.MaxLinesLimit = 10 }, "max_lines_limit"},
		{"empty task file", func(c *Config) { c.Files.TaskFile = " " }, "files.task_file"},
		{"empty list", func(c *Config) { c.Files.TaskList = "" }, "files.task_list"},
		{"negative ttl", func(c *Config) { c.Cache.TasksTTLMs = -1 }, "tasks_ttl_ms"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"notify without interval", func(c *Config) { c.Notify.Enabled = true; c.Notify.IntervalSec = 0 }, "notify.interval_sec"},
		{"interval ignored when disabled", func(c *Config) { c.Notify.IntervalSec = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Files.ProjectRoot = "/srv/project"

	if got, want := cfg.TaskFilePath(), filepath.Join("/srv/project", ".taskmaster", "tasks", "tasks.json"); got != want {
		t.Errorf("TaskFilePath = %q, want %q", got, want)
	}
	cfg.Files.LogFile = "/var/log/pipeline.log"
	if got := cfg.LogFilePath(); got != "/var/log/pipeline.log" {
		t.Errorf("absolute path should be kept, got %q", got)
	}
	if got, want := cfg.ControlSocketPath(), filepath.Join("/srv/project", ".taskmaster", "monitor.sock"); got != want {
		t.Errorf("ControlSocketPath = %q, want %q", got, want)
	}
	cfg.Server.ControlSocket = ""
	if got := cfg.ControlSocketPath(); got != "" {
		t.Errorf("disabled control socket resolved to %q", got)
	}
	if got := cfg.Addr(); got != "localhost:8888" {
		t.Errorf("Addr = %q", got)
	}
}
