package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/ports"
)

// Baselines es el dueño de los BaselineAnchor. Un anchor se escribe una sola
// vez: solo se repara si falta o quedó vacío.
type Baselines struct {
	store ports.KV[domain.BaselineAnchor]
}

// NewBaselines crea el store de baselines sobre el KV dado.
func NewBaselines(store ports.KV[domain.BaselineAnchor]) *Baselines {
	return &Baselines{store: store}
}

// All devuelve todos los anchors indexados por MarketKey.Key().
func (b *Baselines) All(ctx context.Context) (map[string]domain.BaselineAnchor, error) {
	all, err := b.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot.Baselines.All: %w", err)
	}
	return all, nil
}

// Anchor fija el baseline de key con prob si no existe. Devuelve el anchor
// vigente (el existente o el recién creado) y si se creó.
func (b *Baselines) Anchor(ctx context.Context, key domain.MarketKey, prob float64, now time.Time) (domain.BaselineAnchor, bool, error) {
	next := domain.BaselineAnchor{Prob: prob, FirstSeen: now.UTC()}
	if prob <= 0 || prob >= 1 {
		return domain.BaselineAnchor{}, false, fmt.Errorf("snapshot.Baselines.Anchor: prob %.6f out of (0,1) for %s", prob, key)
	}

	swapped, err := b.store.CompareAndSwap(ctx, key.Key(), func(cur domain.BaselineAnchor, present bool) bool {
		return !present || cur.IsZero()
	}, next)
	if err != nil {
		return domain.BaselineAnchor{}, false, fmt.Errorf("snapshot.Baselines.Anchor: %w", err)
	}
	if swapped {
		return next, true, nil
	}

	cur, _, err := b.store.Get(ctx, key.Key())
	if err != nil {
		return domain.BaselineAnchor{}, false, fmt.Errorf("snapshot.Baselines.Anchor: %w", err)
	}
	return cur, false, nil
}

// AnchorAll fija en una sola escritura los anchors que falten. Devuelve los
// anchors vigentes para todas las claves pedidas.
func (b *Baselines) AnchorAll(ctx context.Context, probs map[string]float64, now time.Time) (map[string]domain.BaselineAnchor, error) {
	out := make(map[string]domain.BaselineAnchor, len(probs))
	created := 0
	err := b.store.Update(ctx, func(m map[string]domain.BaselineAnchor) error {
		for key, prob := range probs {
			if cur, ok := m[key]; ok && !cur.IsZero() {
				out[key] = cur
				continue
			}
			if prob <= 0 || prob >= 1 {
				continue
			}
			anchor := domain.BaselineAnchor{Prob: prob, FirstSeen: now.UTC()}
			m[key] = anchor
			out[key] = anchor
			created++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot.Baselines.AnchorAll: %w", err)
	}
	if created > 0 {
		slog.Debug("baselines anchored", "created", created)
	}
	return out, nil
}

// Prune elimina anchors de partidos empezados o más viejos que maxAge.
// Devuelve cuántos eliminó.
func (b *Baselines) Prune(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	removed := 0
	err := b.store.Update(ctx, func(m map[string]domain.BaselineAnchor) error {
		for key, anchor := range m {
			if stale(key, anchor, now, maxAge) {
				delete(m, key)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("snapshot.Baselines.Prune: %w", err)
	}
	if removed > 0 {
		slog.Info("stale baselines pruned", "removed", removed)
	}
	return removed, nil
}

func stale(key string, anchor domain.BaselineAnchor, now time.Time, maxAge time.Duration) bool {
	if anchor.IsZero() {
		return true
	}
	if maxAge > 0 && !anchor.FirstSeen.IsZero() && now.Sub(anchor.FirstSeen) > maxAge {
		return true
	}
	mk, err := domain.ParseMarketKey(key)
	if err != nil {
		return true
	}
	h, err := domain.HoursToGame(mk.GameID, now)
	if err != nil {
		return false
	}
	return h <= 0
}
