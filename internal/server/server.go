// Package server exposes the pipeline snapshot over HTTP: the dashboard page
// and a small read-only JSON/text API polled by it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/msageha/pipeline_monitor/internal/logtail"
	"github.com/msageha/pipeline_monitor/internal/model"
	"github.com/msageha/pipeline_monitor/templates"
)

// Snapshotter is the query side of snapshot.Service.
type Snapshotter interface {
	Tasks(ctx context.Context) (model.TaskDocument, error)
	Logs(ctx context.Context, maxLines int) (model.LogWindow, error)
	Status(ctx context.Context) model.StatusSnapshot
	Progress(ctx context.Context) (model.ProgressReport, error)
}

type Server struct {
	cfg    model.Config
	snap   Snapshotter
	diag   *Diagnostics
	logger *zap.Logger
	page   *template.Template
	static fs.FS
}

type pageData struct {
	ProjectRoot string
	TaskList    string
	LogLines    int
}

func New(cfg model.Config, snap Snapshotter, diag *Diagnostics, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if diag == nil {
		diag = NewDiagnostics()
	}

	page, err := template.ParseFS(templates.FS, "dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	static, err := fs.Sub(templates.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	return &Server{
		cfg:    cfg,
		snap:   snap,
		diag:   diag,
		logger: logger.Named("http"),
		page:   page,
		static: static,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)

	return withRequestID(withAccessLog(s.logger, withCORS(withSecurityHeaders(mux))))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := s.page.Execute(w, pageData{
		ProjectRoot: s.cfg.Files.ProjectRoot,
		TaskList:    s.cfg.Files.TaskList,
		LogLines:    s.cfg.Logs.MaxLinesLimit,
	})
	if err != nil {
		s.logger.Error("render dashboard", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	doc, err := s.snap.Tasks(r.Context())
	if err != nil {
		s.fail(w, r, "Error reading tasks", err)
		return
	}
	s.writeJSON(w, r, doc)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	maxLines, err := s.parseLines(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	window, err := s.snap.Logs(r.Context(), maxLines)
	if err != nil {
		s.fail(w, r, "Error reading logs", err)
		return
	}

	body := logtail.Join(window.Lines)
	if !window.Exists {
		body = s.cfg.Logs.Placeholder + "\n"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.snap.Status(r.Context()))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	report, err := s.snap.Progress(r.Context())
	if err != nil {
		s.fail(w, r, "Error reading tasks", err)
		return
	}
	s.writeJSON(w, r, report)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.diag.Snapshot())
}

// parseLines reads the optional lines parameter, clamped to
// [1, logs.max_lines_limit].
func (s *Server) parseLines(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("lines")
	if raw == "" {
		return s.cfg.Logs.MaxLines, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid lines parameter %q", raw)
	}
	if n < 1 {
		n = 1
	}
	if limit := s.cfg.Logs.MaxLinesLimit; limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(w, r, "Error encoding response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
}
