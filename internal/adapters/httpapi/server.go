// Package httpapi expone un API de solo lectura sobre el snapshot y la
// exposición por tema.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

const requestTimeout = 5 * time.Second

// SnapshotReader lee el último snapshot escrito.
type SnapshotReader interface {
	Load(ctx context.Context) ([]domain.SnapshotRow, error)
}

// ExposureReader lee el tracker de exposición compartido.
type ExposureReader interface {
	All(ctx context.Context) (map[string]float64, error)
}

// Handler contiene las dependencias de los endpoints.
type Handler struct {
	snapshots SnapshotReader
	exposure  ExposureReader
	now       func() time.Time
}

// NewHandler crea un Handler.
func NewHandler(snapshots SnapshotReader, exposure ExposureReader) *Handler {
	return &Handler{snapshots: snapshots, exposure: exposure, now: time.Now}
}

// NewRouter monta las rutas. metrics puede ser nil.
func NewRouter(h *Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", h.Health)
	r.Get("/snapshot", h.Snapshot)
	r.Get("/exposure", h.Exposure)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// Health responde el estado del proceso.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
	})
}

// Snapshot devuelve las filas del snapshot.
// Query params: role, all (incluye filas no visibles).
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	rows, err := h.snapshots.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot unavailable", err)
		return
	}

	role := domain.Role(r.URL.Query().Get("role"))
	all := r.URL.Query().Get("all") == "true"

	out := make([]domain.SnapshotRow, 0, len(rows))
	for _, row := range rows {
		if !all && !row.Visible {
			continue
		}
		if role != "" && !row.HasRole(role) {
			continue
		}
		out = append(out, row)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  out,
		"count": len(out),
	})
}

type themeExposure struct {
	Theme string  `json:"theme"`
	Units float64 `json:"units"`
}

// Exposure devuelve el stake acumulado por tema, ordenado por tema.
func (h *Handler) Exposure(w http.ResponseWriter, r *http.Request) {
	all, err := h.exposure.All(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "exposure unavailable", err)
		return
	}

	themes := make([]themeExposure, 0, len(all))
	var total float64
	for theme, units := range all {
		themes = append(themes, themeExposure{Theme: theme, Units: units})
		total += units
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].Theme < themes[j].Theme })

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"themes": themes,
		"total":  domain.RoundStake(total),
	})
}

// Serve escucha en addr hasta que ctx se cancele.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("http encode failed", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	slog.Warn("http request failed", "message", message, "err", err)
	respondJSON(w, status, map[string]string{"error": message})
}
