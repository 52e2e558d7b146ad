package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/pipeline_monitor/internal/events"
	"github.com/msageha/pipeline_monitor/internal/lock"
	"github.com/msageha/pipeline_monitor/internal/model"
	"github.com/msageha/pipeline_monitor/internal/notify"
	"github.com/msageha/pipeline_monitor/internal/snapshot"
	"github.com/msageha/pipeline_monitor/internal/watch"
)

// auditedEvents are forwarded to the audit log. Absence is recorded on
// every poll and is left out.
var auditedEvents = []events.EventType{
	events.EventTasksMalformed,
	events.EventTasksReadError,
	events.EventLogRotated,
	events.EventLogReadRetry,
	events.EventLogReadError,
}

// App wires the snapshot service, diagnostics and HTTP server for the
// serve command.
type App struct {
	cfg    model.Config
	logger *zap.Logger

	service *snapshot.Service
	diag    *Diagnostics
	bus     *events.Bus
	audit   *events.AuditLogger
	lock    *lock.FileLock
	watcher *watch.Watcher

	notifier notify.Notifier
}

func NewApp(cfg model.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		diag:   NewDiagnostics(),
		bus:    events.NewBus(256),
		lock:   lock.NewFileLock(cfg.LockFilePath()),

		notifier: notify.Desktop{},
	}

	if cfg.Diagnostics.AuditLog != "" {
		audit, err := events.NewAuditLogger(cfg.AuditLogPath(), cfg.Diagnostics.AuditMaxBytes)
		if err != nil {
			a.bus.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.audit = audit
		for _, typ := range auditedEvents {
			a.bus.Subscribe(typ, audit.Record)
		}
	}

	sink := events.Tee(events.NewLogSink(logger), a.diag, a.bus)
	a.service = snapshot.New(cfg, snapshot.WithSink(sink))
	return a, nil
}

func (a *App) Service() *snapshot.Service { return a.service }

func (a *App) Diagnostics() *Diagnostics { return a.diag }

// Listen takes the single-instance lock and opens the listening socket.
func (a *App) Listen() (net.Listener, error) {
	if err := a.lock.TryLock(); err != nil {
		return nil, fmt.Errorf("monitor lock %s: %w", a.lock.Path(), err)
	}
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		a.lock.Unlock()
		return nil, fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv, err := New(a.cfg, a.service, a.diag, a.logger)
	if err != nil {
		ln.Close()
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	if ctl := a.startControl(ln.Addr().String(), time.Now(), stop); ctl != nil {
		defer ctl.Stop()
	}

	if a.cfg.Cache.Watch {
		a.watcher = watch.New(a.service, a.logger, a.service.TaskPath(), a.service.LogPath())
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("file watcher disabled", zap.Error(err))
			a.watcher = nil
		}
	}

	var bg sync.WaitGroup
	defer func() {
		stop()
		bg.Wait()
	}()
	if a.cfg.Notify.Enabled {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.watchProgress(ctx)
		}()
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(a.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	a.logger.Info("monitor ready", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		a.stopWatcher()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutdown started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	err = httpSrv.Shutdown(shutdownCtx)
	a.stopWatcher()
	if err != nil {
		a.logger.Warn("shutdown timed out, closing connections", zap.Error(err))
		httpSrv.Close()
	}
	<-errCh
	a.logger.Info("monitor stopped")
	return nil
}

// watchProgress polls the progress report and sends a notification when a
// task or the whole list completes.
func (a *App) watchProgress(ctx context.Context) {
	tracker := notify.NewTracker(a.notifier, a.logger)
	ticker := time.NewTicker(a.cfg.NotifyInterval())
	defer ticker.Stop()

	for {
		if report, err := a.service.Progress(ctx); err == nil {
			tracker.Observe(report)
		} else if ctx.Err() == nil {
			a.logger.Debug("progress poll", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) stopWatcher() {
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Close(); err != nil {
		a.logger.Debug("close watcher", zap.Error(err))
	}
}

// Close releases the lock and flushes diagnostics. Call it after Serve
// returns.
func (a *App) Close() error {
	var errs []error
	a.bus.Close()
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
	}
	if err := a.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
