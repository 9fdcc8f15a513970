package snapshot

import (
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

const (
	defaultVisibilityWindow = 30 * time.Minute
	defaultCarryWindow      = 24 * time.Hour
)

// MergeConfig controla cuánto tiempo sobreviven las filas no reevaluadas.
type MergeConfig struct {
	// VisibilityWindow: una fila arrastrada sigue visible si se vio hace menos de esto.
	VisibilityWindow time.Duration
	// CarryWindow: una fila no vista en este tiempo se descarta.
	CarryWindow time.Duration
}

func (c MergeConfig) withDefaults() MergeConfig {
	if c.VisibilityWindow <= 0 {
		c.VisibilityWindow = defaultVisibilityWindow
	}
	if c.CarryWindow <= 0 {
		c.CarryWindow = defaultCarryWindow
	}
	return c
}

// Merge combina las filas frescas del poll con los campos durables del
// snapshot anterior:
//
//   - baseline (si la fila fresca no trae uno), first_seen y queued_at
//   - logged + logged_at
//   - último skip reason cuando la fila fresca no tiene veredicto
//   - roles (unión)
//
// Las filas anteriores que no se reevaluaron se conservan mientras el partido
// no haya empezado y se hayan visto dentro de CarryWindow.
func Merge(prior, fresh []domain.SnapshotRow, now time.Time, cfg MergeConfig) []domain.SnapshotRow {
	cfg = cfg.withDefaults()

	byKey := make(map[string]domain.SnapshotRow, len(prior))
	for _, row := range prior {
		byKey[row.Key().Key()] = row
	}

	out := make([]domain.SnapshotRow, 0, len(fresh)+len(prior))
	seen := make(map[string]bool, len(fresh))

	for _, row := range fresh {
		key := row.Key().Key()
		seen[key] = true
		if old, ok := byKey[key]; ok {
			row = carry(old, row)
		}
		row.Fresh = true
		row.Visible = true
		if row.LastSeen.IsZero() {
			row.LastSeen = now
		}
		if row.FirstSeen.IsZero() {
			row.FirstSeen = now
		}
		out = append(out, row)
	}

	for _, old := range prior {
		key := old.Key().Key()
		if seen[key] {
			continue
		}
		seen[key] = true // filas duplicadas en el snapshot anterior
		if started(old, now) || now.Sub(old.LastSeen) > cfg.CarryWindow {
			continue
		}
		old.Fresh = false
		old.Visible = old.Logged || now.Sub(old.LastSeen) <= cfg.VisibilityWindow
		out = append(out, old)
	}

	sortRows(out)
	return out
}

// carry copia los campos durables de old a fresh.
func carry(old, fresh domain.SnapshotRow) domain.SnapshotRow {
	if fresh.Baseline <= 0 && old.Baseline > 0 {
		fresh.Baseline = old.Baseline
		if fresh.ConsensusProb > 0 {
			fresh.Movement = fresh.ConsensusProb - old.Baseline
		}
	}
	if !old.FirstSeen.IsZero() && (fresh.FirstSeen.IsZero() || old.FirstSeen.Before(fresh.FirstSeen)) {
		fresh.FirstSeen = old.FirstSeen
	}
	if old.Logged {
		fresh.Logged = true
		if fresh.LoggedAt == nil {
			fresh.LoggedAt = old.LoggedAt
		}
	}
	if fresh.QueuedAt == nil {
		fresh.QueuedAt = old.QueuedAt
	}
	if fresh.Deferred && old.Deferred && old.PendingDelta > fresh.PendingDelta {
		fresh.PendingDelta = old.PendingDelta
	}
	if fresh.SkipReason == domain.SkipNone && !fresh.Accepted && old.SkipReason != domain.SkipNone {
		fresh.SkipReason = old.SkipReason
		fresh.SkipDetail = old.SkipDetail
	}
	fresh.AddRoles(old.Roles...)
	return fresh
}

func started(row domain.SnapshotRow, now time.Time) bool {
	h, err := domain.HoursToGame(row.GameID, now)
	if err != nil {
		return false
	}
	return h <= 0
}
