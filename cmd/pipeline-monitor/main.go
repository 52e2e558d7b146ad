package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msageha/pipeline_monitor/internal/model"
)

const version = "1.0.0"

type options struct {
	configPath string
	projectDir string
	verbose    bool
	port       int
	taskFile   string
	logFile    string

	cfg    model.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pipeline-monitor",
		Short: "Live dashboard for a task pipeline",
		Long: `pipeline-monitor serves a browser dashboard over a pipeline's task file
(.taskmaster/tasks/tasks.json) and its log (.taskmaster/pipeline.log).

Run without a subcommand to start the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: <project>/.taskmaster/monitor.yaml)")
	flags.StringVarP(&opts.projectDir, "project-dir", "C", "", "Project root (default: nearest directory containing .taskmaster/)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.IntVarP(&opts.port, "port", "p", 0, "HTTP port (overrides server.port)")
	flags.StringVar(&opts.taskFile, "task-file", "", "Task file (overrides files.task_file)")
	flags.StringVar(&opts.logFile, "log-file", "", "Pipeline log (overrides files.log_file)")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newStopCmd(opts),
		newTailCmd(opts),
		newReportCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger. Commands that do not
// read the project only get a logger.
func (o *options) setup(cmd *cobra.Command) error {
	level := "info"
	if cmd.Annotations["config"] != "skip" {
		cfg, err := loadConfig(o, cmd.Flags().Changed("port"))
		if err != nil {
			return err
		}
		o.cfg = cfg
		level = cfg.Logging.Level
	}
	if o.verbose {
		level = "debug"
	}

	logger, err := newLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.logger = logger
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline-monitor %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
