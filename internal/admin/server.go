package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"

	"github.com/cartridge/prioreplay/internal/storage"
)

// Server exposes health, stats and metrics over HTTP.
type Server struct {
	backend  storage.Backend
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(backend storage.Backend, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	return &Server{
		backend:  backend,
		gatherer: gatherer,
		logger:   logger.With().Str("component", "admin").Logger(),
	}
}

// Routes builds the admin router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.GetStats(r.Context(), ""); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsPayload struct {
	Capacity         uint64            `json:"capacity"`
	Size             uint64            `json:"size"`
	TotalStored      uint64            `json:"total_stored"`
	Evicted          uint64            `json:"evicted"`
	TotalPriority    float64           `json:"total_priority"`
	MaxPriority      float64           `json:"max_priority"`
	MinPriority      float64           `json:"min_priority"`
	Beta             float64           `json:"beta"`
	TransitionsByEnv map[string]uint64 `json:"transitions_by_env"`
	StorageBytes     uint64            `json:"storage_bytes"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.GetStats(r.Context(), r.URL.Query().Get("env_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, statsPayload{
		Capacity:         stats.Capacity,
		Size:             stats.Size,
		TotalStored:      stats.TotalStored,
		Evicted:          stats.Evicted,
		TotalPriority:    stats.TotalPriority,
		MaxPriority:      stats.MaxPriority,
		MinPriority:      stats.MinPriority,
		Beta:             stats.Beta,
		TransitionsByEnv: stats.TransitionsByEnv,
		StorageBytes:     stats.StorageBytes,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug().Err(err).Msg("write response")
	}
}
