package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"engagement/internal/config"
	"engagement/internal/engine"
	"engagement/internal/model"
	"engagement/internal/report"
	"engagement/internal/storage"
)

type Server struct {
	cfg     *config.Manager
	store   storage.Store
	engine  *engine.Engine
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Ingest     ingestStatus `json:"ingest"`
	API        apiStatus    `json:"api"`
	Indicators []string     `json:"indicators"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, store storage.Store, eng *engine.Engine, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/risks", server.handleRisks)
	mux.HandleFunc("/report", server.handleReport)
	mux.HandleFunc("/indicators", server.handleIndicators)
	mux.HandleFunc("/settings", server.handleSettings)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		API:        apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Indicators: s.engine.Indicators(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRisks serves GET /risks?course=&start=&end=[&users=1,2,3].
func (s *Server) handleRisks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	courseID, win, users, err := riskQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	risks, err := s.engine.CourseRisks(r.Context(), courseID, win, users)
	if err != nil {
		s.serverError(w, "course risks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"course": courseID,
		"window": win,
		"risks":  risks,
	})
}

// handleReport serves GET /report?course=&start=&end=, the rendered course
// overview table.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	courseID, win, users, err := riskQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	risks, err := s.engine.CourseRisks(r.Context(), courseID, win, users)
	if err != nil {
		s.serverError(w, "course risks", err)
		return
	}
	columns, err := report.Build(r.Context(), risks, s.store, courseID, win)
	if err != nil {
		s.serverError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"course":  courseID,
		"window":  win,
		"columns": columns,
	})
}

// handleIndicators lists the registered indicators with their defaults.
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out := make(map[string]any)
	for _, name := range s.engine.Indicators() {
		out[name] = s.engine.IndicatorDefaults(name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": out})
}

// handleSettings serves the per-course indicator settings:
// GET /settings?course=&indicator= returns the persisted values,
// POST with the same query persists the JSON body after validation.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	courseID, err := queryInt(r, "course")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	name := r.URL.Query().Get("indicator")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing indicator"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		values, err := s.engine.Settings(r.Context(), courseID, name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"course":    courseID,
			"indicator": name,
			"settings":  values,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var values map[string]string
		if err := json.Unmarshal(body, &values); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be a string map"})
			return
		}
		if err := s.engine.SaveSettings(r.Context(), courseID, name, values); err != nil {
			if errors.Is(err, engine.ErrInvalidSettings) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
				return
			}
			s.serverError(w, "save settings", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	if s.logger != nil {
		s.logger.Error("api error", "op", op, "err", err)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func riskQuery(r *http.Request) (int64, model.Window, []int64, error) {
	courseID, err := queryInt(r, "course")
	if err != nil {
		return 0, model.Window{}, nil, err
	}
	start, err := queryTime(r, "start")
	if err != nil {
		return 0, model.Window{}, nil, err
	}
	end, err := queryTime(r, "end")
	if err != nil {
		return 0, model.Window{}, nil, err
	}
	win := model.Window{Start: start, End: end}
	if win.End.Before(win.Start) {
		return 0, model.Window{}, nil, errors.New("end before start")
	}

	var users []int64
	if raw := r.URL.Query().Get("users"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return 0, model.Window{}, nil, errors.New("users must be a comma separated id list")
			}
			users = append(users, id)
		}
	}
	return courseID, win, users, nil
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, errors.New("missing " + key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

// queryTime accepts unix epoch seconds or RFC 3339.
func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, errors.New("missing " + key)
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(key + " must be unix seconds or RFC 3339")
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
