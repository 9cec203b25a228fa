// Package server serves stored runs and reduces pasted datasets over HTTP.
package server

import (
	"embed"
	"encoding/csv"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/metrics"
	"github.com/TobiSchelling/d47crunch/internal/pipeline"
	"github.com/TobiSchelling/d47crunch/internal/report"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the HTTP front end of the run store.
type Server struct {
	db       *database.DB
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	logger   *zap.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server. Reductions submitted through the form run on p
// and are counted in m.
func New(db *database.DB, p *pipeline.Pipeline, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Parse base template first
	base, err := template.New("base.html").ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "report.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pipeline: p, metrics: m, logger: logger, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/reduce", s.handleReduce)
	s.mux.HandleFunc("/runs/", s.handleRun)
	if s.metrics != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRuns(0)
	if err != nil {
		s.logger.Error("listing runs", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs": runs,
	})
}

func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	opts := pipeline.Options{
		Source: "web form",
		Method: standardize.Method(r.FormValue("method")),
		Split:  dataset.Grouping(r.FormValue("split")),
		Save:   r.FormValue("save") != "",
	}
	res := s.pipeline.Run(r.Context(), strings.NewReader(r.FormValue("rawdata")), opts)

	var body template.HTML
	if res.Standardization != nil {
		html, err := report.HTML(res.Standardization)
		if err != nil {
			s.logger.Error("rendering report", zap.Error(err))
		} else {
			body = template.HTML(html) //nolint: gosec
		}
	}

	status := http.StatusOK
	if res.Err() != nil {
		status = http.StatusUnprocessableEntity
	}
	s.renderStatus(w, status, "report.html", map[string]any{
		"Steps":  res.Steps,
		"RunID":  res.RunID,
		"Report": body,
	})
}

// handleRun serves /runs/{id}, /runs/{id}/samples.csv and
// POST /runs/{id}/delete.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/runs/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	switch action {
	case "":
		s.showRun(w, id)
	case "samples.csv":
		s.exportSamples(w, r, id)
	case "delete":
		if r.Method != http.MethodPost {
			http.Redirect(w, r, "/runs/"+id, http.StatusFound)
			return
		}
		if _, err := s.db.DeleteRun(id); err != nil {
			s.logger.Error("deleting run", zap.String("run_id", id), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) showRun(w http.ResponseWriter, id string) {
	rec, err := s.db.GetRunRecord(id)
	if err != nil {
		s.logger.Error("loading run", zap.String("run_id", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var body template.HTML
	status := http.StatusNotFound
	if rec != nil {
		status = http.StatusOK
		if html, err := report.RenderHTML(report.StoredMarkdown(rec)); err == nil {
			body = template.HTML(html) //nolint: gosec
		}
	}
	s.renderStatus(w, status, "run.html", map[string]any{
		"ID":     id,
		"Report": body,
	})
}

func (s *Server) exportSamples(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.db.GetRun(id)
	if err != nil || run == nil {
		http.NotFound(w, r)
		return
	}
	samples, err := s.db.GetSamples(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "samples-"+id+".csv"))
	cw := csv.NewWriter(w)
	cw.Write([]string{"Sample", "N", "d13C_VPDB", "d18O_VSMOW", "D47", "SE", "95% CL", "SD", "p_Levene"})
	for _, sm := range samples {
		se, cl := "", ""
		if !sm.Anchor {
			se = num(sm.SE)
			cl = num(run.T95 * sm.SE)
		}
		cw.Write([]string{sm.Name, strconv.Itoa(sm.N), num(sm.D13CVPDB), num(sm.D18OVSMOW),
			num(sm.D47), se, cl, num(sm.SD), num(sm.PLevene)})
	}
	cw.Flush()
}

// num formats a value for export, NaN left blank.
func num(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
	}
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, p *pipeline.Pipeline, m *metrics.Metrics, logger *zap.Logger, port int) error {
	srv, err := New(db, p, m, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.logger.Info("server listening", zap.String("addr", "http://"+addr))
	return http.ListenAndServe(addr, srv.Handler())
}
