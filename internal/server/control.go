package server

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/pipeline_monitor/internal/uds"
)

// startControl opens the control socket used by the status and stop
// commands. shutdown cancels the serve loop.
func (a *App) startControl(addr string, started time.Time, shutdown context.CancelFunc) *uds.Server {
	path := a.cfg.ControlSocketPath()
	if path == "" {
		return nil
	}

	ctl := uds.NewServer(path, a.logger)
	ctl.Handle(uds.CommandPing, func(*uds.Request) *uds.Response {
		return uds.SuccessResponse(uds.PingData{
			Pid:     os.Getpid(),
			Addr:    addr,
			Started: started.UTC().Format(time.RFC3339),
		})
	})
	ctl.Handle(uds.CommandInvalidate, func(*uds.Request) *uds.Response {
		a.service.Reset()
		return uds.SuccessResponse(nil)
	})
	ctl.Handle(uds.CommandDiagnostics, func(*uds.Request) *uds.Response {
		return uds.SuccessResponse(a.diag.Snapshot())
	})
	ctl.Handle(uds.CommandShutdown, func(*uds.Request) *uds.Response {
		a.logger.Info("shutdown requested over control socket")
		shutdown()
		return uds.SuccessResponse(nil)
	})

	if err := ctl.Start(); err != nil {
		a.logger.Warn("control socket disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return ctl
}
