package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/report"
	"github.com/msageha/pipeline_monitor/internal/server"
	"github.com/msageha/pipeline_monitor/internal/setup"
	"github.com/msageha/pipeline_monitor/internal/snapshot"
	"github.com/msageha/pipeline_monitor/internal/status"
	"github.com/msageha/pipeline_monitor/internal/uds"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *options) error {
	app, err := server.NewApp(opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			opts.logger.Warn("cleanup", zap.Error(err))
		}
	}()

	ln, err := app.Listen()
	if err != nil {
		return err
	}
	printBanner(cmd.OutOrStdout(), opts, "http://"+ln.Addr().String())

	// A second signal after NotifyContext fires gets the default handler
	// and kills the process.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	return app.Serve(ctx, ln)
}

func printBanner(w io.Writer, opts *options, url string) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Pipeline Monitoring Dashboard")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "\nStarting server on %s\n", url)
	fmt.Fprintf(w, "Monitoring directory: %s\n", opts.cfg.Files.ProjectRoot)
	fmt.Fprintf(w, "Tasks file: %s\n", opts.cfg.TaskFilePath())
	fmt.Fprintf(w, "Log file: %s\n", opts.cfg.LogFilePath())
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "\nOpen your browser to: %s\n", url)
	fmt.Fprintln(w, "Press Ctrl+C to stop the server")
}

func newSnapshot(opts *options) *snapshot.Service {
	return snapshot.New(opts.cfg, snapshot.WithSink(events.NewLogSink(opts.logger)))
}

func newStatusCmd(opts *options) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show file presence, progress and per-task status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := status.Paths{
				Tasks:  opts.cfg.TaskFilePath(),
				Log:    opts.cfg.LogFilePath(),
				Lock:   opts.cfg.LockFilePath(),
				Socket: opts.cfg.ControlSocketPath(),
			}
			return status.Run(cmd.Context(), cmd.OutOrStdout(), newSnapshot(opts), paths, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.ControlSocketPath()
			if path == "" {
				return errors.New("server.control_socket is not configured")
			}
			resp, err := uds.NewClient(path).SendCommand(uds.CommandShutdown, nil)
			if err != nil {
				return err
			}
			if err := resp.Decode(nil); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
			return nil
		},
	}
}

func newTailCmd(opts *options) *cobra.Command {
	var (
		lines int
		color bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the last lines of the pipeline log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return status.Tail(cmd.Context(), cmd.OutOrStdout(), newSnapshot(opts), status.TailOptions{
				Lines:       lines,
				Placeholder: opts.cfg.Logs.Placeholder,
				Color:       color,
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Number of lines (default: logs.max_lines)")
	cmd.Flags().BoolVar(&color, "color", false, "Colour lines by severity")
	return cmd
}

func newReportCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a markdown progress report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auditPath := ""
			if opts.cfg.Diagnostics.AuditLog != "" {
				auditPath = opts.cfg.AuditLogPath()
			}
			f := report.NewFormatter(newSnapshot(opts), auditPath, opts.cfg.Logs.MaxLinesLimit)
			if output == "" {
				return f.Write(cmd.Context(), cmd.OutOrStdout())
			}
			if err := f.WriteFile(cmd.Context(), output); err != nil {
				return err
			}
			opts.logger.Info("report written", zap.String("path", output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file instead of stdout")
	return cmd
}

func newInitCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init [dir]",
		Short:       "Write a default .taskmaster/monitor.yaml",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.projectDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = "."
			}
			path, err := setup.Run(dir, force)
			if errors.Is(err, setup.ErrConfigExists) {
				return fmt.Errorf("%w (use --force to replace it)", err)
			}
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing config (kept as .bak)")
	return cmd
}
