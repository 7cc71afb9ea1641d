package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/mapmatch"
	"kuanb/gosm-matcher/observability"
)

// maxRequestSize caps /match bodies at 10MB
const maxRequestSize = 10 * 1024 * 1024

// Server holds the matching service for handling requests
type Server struct {
	service *mapmatch.Service
	metrics *observability.MatchCollector
	log     *zap.Logger
}

// matchResponse is a GeoJSON FeatureCollection with run level members
type matchResponse struct {
	Type         string             `json:"type"`
	Features     []*geojson.Feature `json:"features"`
	RunID        string             `json:"run_id"`
	Confidence   float64            `json:"confidence"`
	Materialized bool               `json:"materialized"`
	Error        string             `json:"error,omitempty"`
}

// RuntimeMetrics holds memory and goroutine statistics
type RuntimeMetrics struct {
	Goroutines   int     `json:"goroutines"`
	AllocMB      float64 `json:"alloc_mb"`       // currently allocated heap
	TotalAllocMB float64 `json:"total_alloc_mb"` // cumulative allocated (includes freed)
	SysMB        float64 `json:"sys_mb"`         // total memory from OS
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	HeapObjects  uint64  `json:"heap_objects"`
	NumGC        uint32  `json:"num_gc"`
}

// getRuntimeMetrics collects current runtime statistics
func getRuntimeMetrics() RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		AllocMB:      float64(m.Alloc) / 1024 / 1024,
		TotalAllocMB: float64(m.TotalAlloc) / 1024 / 1024,
		SysMB:        float64(m.Sys) / 1024 / 1024,
		HeapAllocMB:  float64(m.HeapAlloc) / 1024 / 1024,
		HeapSysMB:    float64(m.HeapSys) / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
		NumGC:        m.NumGC,
	}
}

// startMetricsLogger logs runtime metrics periodically until done is closed
func startMetricsLogger(log *zap.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m := getRuntimeMetrics()
				log.Info("runtime metrics",
					zap.Int("goroutines", m.Goroutines),
					zap.Float64("alloc_mb", m.AllocMB),
					zap.Float64("sys_mb", m.SysMB),
					zap.Uint64("heap_objects", m.HeapObjects),
					zap.Uint32("gc_cycles", m.NumGC),
				)
			}
		}
	}()
}

// routes registers the HTTP endpoints
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/match", s.handleMatch)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics, runtime statistics as JSON
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/runtime", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(getRuntimeMetrics())
	})
	return mux
}

// handleMatch processes a GeoJSON trajectory and returns the matched segments
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Read request body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	points, err := geom.ReadTrajectory(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.log.Debug("processing match request", zap.Int("coordinates", len(points)))

	res, err := s.service.Match(r.Context(), points, nil)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	writeJSON(w, s.log, newMatchResponse(res))
}

func newMatchResponse(res *mapmatch.Result) matchResponse {
	resp := matchResponse{
		Type:         "FeatureCollection",
		Features:     mapmatch.FeatureCollection(res).Features,
		RunID:        res.RunID,
		Confidence:   res.Confidence,
		Materialized: res.Materialized,
	}
	if res.RoutingError != nil {
		resp.Error = res.RoutingError.Error()
	}
	return resp
}

// statusOf maps matching failures to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, hmm.ErrEmptyTrajectory), errors.Is(err, hmm.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, hmm.ErrNoCandidates), errors.Is(err, hmm.ErrEmptyPath):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}
