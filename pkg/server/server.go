package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elonfeng/skillradar/internal/pipeline"
	"github.com/elonfeng/skillradar/internal/store"
	"github.com/elonfeng/skillradar/pkg/skill"
)

// Collector runs an ingestion cycle on demand.
type Collector interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	collector Collector
	port      int
	log       *slog.Logger
}

// New creates a new HTTP server. A nil collector disables POST /api/v1/collect.
func New(s store.Store, c Collector, port int, log *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     s,
		collector: c,
		port:      port,
		log:       log,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/dates", s.handleDates)
	mux.HandleFunc("GET /api/v1/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/v1/snapshots/{date}", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/skills/{name}", s.handleSkill)
	mux.HandleFunc("GET /api/v1/skills/{name}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/categories/{date}", s.handleCategories)
	mux.HandleFunc("GET /api/v1/movers/{date}", s.handleMovers)
	mux.HandleFunc("POST /api/v1/collect", s.handleCollect)
	return mux
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("skillradar server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 30)
	if !ok {
		return
	}
	dates, err := s.store.ListAvailableDates(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(dates),
		"count": len(dates),
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	snaps, err := s.store.ListAvailableSnapshots(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(snaps),
		"count": len(snaps),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if err := skill.ValidateDate(date); err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.store.GetByDate(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot on " + date})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"data":  records,
		"count": len(records),
	})
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, found, err := s.store.GetDetails(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no details for " + name})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30)
	if !ok {
		return
	}
	name := r.PathValue("name")
	points, err := s.store.GetSkillHistory(r.Context(), name, days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"data":  nonNil(points),
		"count": len(points),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if err := skill.ValidateDate(date); err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.store.CategoryStats(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"data":  nonNil(stats),
		"count": len(stats),
	})
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 5)
	if !ok {
		return
	}
	date := r.PathValue("date")
	if err := skill.ValidateDate(date); err != nil {
		s.writeError(w, err)
		return
	}
	movers, err := s.store.TopMovers(r.Context(), date, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"rising":  nonNil(movers.Rising),
		"falling": nonNil(movers.Falling),
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "collection disabled"})
		return
	}

	res, err := s.collector.Run(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        res.RunID,
		"snapshot_time": res.SnapshotTime,
		"skills":        len(res.Trends.Records),
		"new":           len(res.Trends.NewEntries),
		"dropped":       len(res.Trends.Dropped),
		"details_saved": res.DetailsSaved,
		"notified":      res.Notified,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, skill.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunning):
		status = http.StatusConflict
	default:
		s.log.Error("api request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// queryInt reads a non-negative integer query parameter, writing a 400 and
// returning false when it is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid %s %q", key, v)})
		return 0, false
	}
	return n, true
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
