// Package exposure lleva el stake acumulado por tema de riesgo.
package exposure

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/ports"
)

// Ledger es el dueño exclusivo de la exposición por tema. El estado durable
// vive en un KV compartido (el tracker); la caché en memoria se recarga al
// inicio de cada poll con Refresh. Con un bet log asignado (Seed), ningún
// tema queda por debajo de lo registrado en él.
type Ledger struct {
	store ports.KV[float64]

	mu    sync.RWMutex
	cache map[string]float64
	log   ports.BetLog
	since time.Time
}

// NewLedger crea un Ledger sobre el tracker dado.
func NewLedger(store ports.KV[float64]) *Ledger {
	return &Ledger{store: store, cache: make(map[string]float64)}
}

// Seed fija el bet log como piso de la exposición y alinea el tracker.
// Los excesos (entradas fantasma) los corrige la reconciliación, no el seed.
func (l *Ledger) Seed(ctx context.Context, log ports.BetLog, since time.Time) error {
	l.mu.Lock()
	l.log, l.since = log, since
	l.mu.Unlock()
	if err := l.Refresh(ctx); err != nil {
		return fmt.Errorf("exposure.Seed: %w", err)
	}
	return nil
}

// Refresh recarga la caché desde el tracker compartido. Los temas por debajo
// del bet log se suben al valor del log, en caché y en el tracker.
func (l *Ledger) Refresh(ctx context.Context) error {
	all, err := l.store.All(ctx)
	if err != nil {
		return fmt.Errorf("exposure.Refresh: %w", err)
	}
	cache := make(map[string]float64, len(all))
	for k, v := range all {
		cache[k] = math.Max(v, 0)
	}

	l.mu.RLock()
	log, since := l.log, l.since
	l.mu.RUnlock()
	if log != nil {
		logged, err := log.StakeByTheme(ctx, since)
		if err != nil {
			return fmt.Errorf("exposure.Refresh: read bet log: %w", err)
		}
		if raised := floor(cache, logged); len(raised) > 0 {
			l.persistFloor(ctx, raised)
		}
	}

	l.mu.Lock()
	l.cache = cache
	l.mu.Unlock()
	return nil
}

// floor sube en cache los temas por debajo de logged y devuelve los subidos.
func floor(cache, logged map[string]float64) map[string]float64 {
	raised := make(map[string]float64)
	for theme, stake := range logged {
		if cache[theme] < stake {
			cache[theme] = stake
			raised[theme] = stake
		}
	}
	return raised
}

// persistFloor escribe los pisos en el tracker. Si falla, la caché ya está
// corregida y el siguiente Refresh lo reintenta.
func (l *Ledger) persistFloor(ctx context.Context, raised map[string]float64) {
	err := l.store.Update(ctx, func(m map[string]float64) error {
		for theme, stake := range raised {
			if m[theme] < stake {
				m[theme] = stake
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("exposure tracker below bet log, update failed", "themes", len(raised), "err", err)
		return
	}
	slog.Info("exposure tracker raised to bet log", "themes_raised", len(raised))
}

// Exposure devuelve el stake acumulado del tema (nunca negativo).
func (l *Ledger) Exposure(theme domain.ThemeKey) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[theme.String()]
}

// Commit suma stake al tema. Solo lo llama el camino de aceptación, después
// de escribir la apuesta en el bet log. Devuelve la exposición resultante.
func (l *Ledger) Commit(ctx context.Context, theme domain.ThemeKey, stake float64) (float64, error) {
	if stake <= 0 || math.IsNaN(stake) {
		return 0, fmt.Errorf("exposure.Commit: invalid stake %.4f for %s", stake, theme)
	}
	key := theme.String()

	var total float64
	err := l.store.Update(ctx, func(m map[string]float64) error {
		total = domain.RoundStake(math.Max(m[key], 0) + stake)
		m[key] = total
		return nil
	})
	if err != nil {
		// La apuesta ya está en el bet log: la caché la refleja igual.
		l.mu.Lock()
		l.cache[key] = domain.RoundStake(l.cache[key] + stake)
		total = l.cache[key]
		l.mu.Unlock()
		return total, fmt.Errorf("exposure.Commit: %w", err)
	}

	l.mu.Lock()
	l.cache[key] = total
	l.mu.Unlock()
	return total, nil
}

// Snapshot devuelve una copia de la caché.
func (l *Ledger) Snapshot() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.cache))
	for k, v := range l.cache {
		out[k] = v
	}
	return out
}
