package model

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Files       FilesConfig       `yaml:"files"`
	Logs        LogsConfig        `yaml:"logs"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Notify      NotifyConfig      `yaml:"notify"`
}

type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	LockFile           string `yaml:"lock_file"`
	// ControlSocket is the Unix socket the running server answers control
	// commands on. Empty disables it.
	ControlSocket string `yaml:"control_socket"`
}

type FilesConfig struct {
	ProjectRoot string `yaml:"project_root"`
	TaskFile    string `yaml:"task_file"`
	LogFile     string `yaml:"log_file"`
	TaskList    string `yaml:"task_list"`
}

type LogsConfig struct {
	MaxLines      int    `yaml:"max_lines"`
	MaxLinesLimit int    `yaml:"max_lines_limit"`
	Placeholder   string `yaml:"placeholder"`
	// Appends larger than this are read with a fresh backwards scan instead
	// of being merged into the cached window.
	MaxIncrementalBytes int64 `yaml:"max_incremental_bytes"`
}

type CacheConfig struct {
	TasksTTLMs int  `yaml:"tasks_ttl_ms"`
	Watch      bool `yaml:"watch"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DiagnosticsConfig struct {
	AuditLog      string `yaml:"audit_log"`
	AuditMaxBytes int64  `yaml:"audit_max_bytes"`
}

// NotifyConfig controls desktop notifications sent by serve when tasks
// complete.
type NotifyConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval_sec"`
}

// DefaultConfig mirrors the layout the pipeline writes under .taskmaster/.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:               "localhost",
			Port:               8888,
			ShutdownTimeoutSec: 5,
			LockFile:           filepath.Join(".taskmaster", "monitor.lock"),
			ControlSocket:      filepath.Join(".taskmaster", "monitor.sock"),
		},
		Files: FilesConfig{
			TaskFile: filepath.Join(".taskmaster", "tasks", "tasks.json"),
			LogFile:  filepath.Join(".taskmaster", "pipeline.log"),
			TaskList: DefaultTaskList,
		},
		Logs: LogsConfig{
			MaxLines:            100,
			MaxLinesLimit:       1000,
			Placeholder:         "No logs available yet.",
			MaxIncrementalBytes: 4 << 20,
		},
		Cache: CacheConfig{
			TasksTTLMs: 500,
			Watch:      true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Diagnostics: DiagnosticsConfig{
			AuditMaxBytes: 10 << 20,
		},
		Notify: NotifyConfig{
			IntervalSec: 5,
		},
	}
}

func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Files.TaskFile) == "" {
		return fmt.Errorf("files.task_file must not be empty")
	}
	if strings.TrimSpace(c.Files.LogFile) == "" {
		return fmt.Errorf("files.log_file must not be empty")
	}
	if strings.TrimSpace(c.Files.TaskList) == "" {
		return fmt.Errorf("files.task_list must not be empty")
	}
	if c.Logs.MaxLines < 1 {
		return fmt.Errorf("logs.max_lines must be >= 1, got %d", c.Logs.MaxLines)
	}
	if c.Logs.MaxLinesLimit < c.Logs.MaxLines {
		return fmt.Errorf("logs.max_lines_limit (%d) must be >= logs.max_lines (%d)", c.Logs.MaxLinesLimit, c.Logs.MaxLines)
	}
	if c.Cache.TasksTTLMs < 0 {
		return fmt.Errorf("cache.tasks_ttl_ms must be >= 0, got %d", c.Cache.TasksTTLMs)
	}
	if c.Notify.Enabled && c.Notify.IntervalSec < 1 {
		return fmt.Errorf("notify.interval_sec must be >= 1, got %d", c.Notify.IntervalSec)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// ResolvePath makes p absolute relative to the project root.
func (c Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Files.ProjectRoot, p)
}

func (c Config) TaskFilePath() string { return c.ResolvePath(c.Files.TaskFile) }
func (c Config) LogFilePath() string  { return c.ResolvePath(c.Files.LogFile) }
func (c Config) LockFilePath() string { return c.ResolvePath(c.Server.LockFile) }
func (c Config) AuditLogPath() string { return c.ResolvePath(c.Diagnostics.AuditLog) }

func (c Config) ControlSocketPath() string { return c.ResolvePath(c.Server.ControlSocket) }

func (c Config) NotifyInterval() time.Duration {
	return time.Duration(c.Notify.IntervalSec) * time.Second
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c Config) TasksTTL() time.Duration {
	return time.Duration(c.Cache.TasksTTLMs) * time.Millisecond
}

func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
