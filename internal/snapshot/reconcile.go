package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/ports"
)

const driftTolerance = 0.005

var errUnchanged = errors.New("unchanged")

func isUnchanged(err error) bool { return errors.Is(err, errUnchanged) }

// Report resume una pasada de reconciliación.
type Report struct {
	PhantomThemes []string              // temas del tracker sin ninguna apuesta en el log
	Adjusted      map[string][2]float64 // tema → [tracker, log]
	Restored      []string              // temas del log que faltaban en el tracker
	LoggedCleared []string              // filas marcadas logged sin registro en el log
}

// Changed reporta si la pasada modificó algo.
func (r Report) Changed() bool {
	return len(r.PhantomThemes)+len(r.Adjusted)+len(r.Restored)+len(r.LoggedCleared) > 0
}

// Reconciler compara tracker y snapshot contra el bet log, que es la verdad.
type Reconciler struct {
	log      ports.BetLog
	tracker  ports.KV[float64]
	snapshot *Store
	since    time.Time
}

// NewReconciler crea un Reconciler. since acota el bet log considerado.
func NewReconciler(log ports.BetLog, tracker ports.KV[float64], snapshot *Store, since time.Time) *Reconciler {
	return &Reconciler{log: log, tracker: tracker, snapshot: snapshot, since: since}
}

// Run elimina entradas fantasma del tracker, corrige deriva y limpia flags
// logged que no tienen respaldo en el log.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (Report, error) {
	report := Report{Adjusted: make(map[string][2]float64)}

	logged, err := r.log.StakeByTheme(ctx, r.since)
	if err != nil {
		return report, fmt.Errorf("snapshot.Reconcile: stake by theme: %w", err)
	}

	err = r.tracker.Update(ctx, func(m map[string]float64) error {
		for theme, have := range m {
			want, ok := logged[theme]
			switch {
			case !ok || want <= 0:
				delete(m, theme)
				report.PhantomThemes = append(report.PhantomThemes, theme)
			case math.Abs(have-want) > driftTolerance:
				m[theme] = want
				report.Adjusted[theme] = [2]float64{have, want}
			}
		}
		for theme, want := range logged {
			if _, ok := m[theme]; !ok && want > 0 {
				m[theme] = want
				report.Restored = append(report.Restored, theme)
			}
		}
		if len(report.PhantomThemes)+len(report.Adjusted)+len(report.Restored) == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil && !isUnchanged(err) {
		return report, fmt.Errorf("snapshot.Reconcile: tracker: %w", err)
	}

	if r.snapshot != nil {
		bets, err := r.log.Bets(ctx, r.since)
		if err != nil {
			return report, fmt.Errorf("snapshot.Reconcile: bets: %w", err)
		}
		recorded := make(map[string]bool, len(bets))
		for _, b := range bets {
			recorded[b.Key.Key()] = true
		}

		err = r.snapshot.Update(ctx, now, func(rows []domain.SnapshotRow) ([]domain.SnapshotRow, error) {
			for i := range rows {
				if rows[i].Logged && !recorded[rows[i].Key().Key()] {
					rows[i].Logged = false
					rows[i].LoggedAt = nil
					report.LoggedCleared = append(report.LoggedCleared, rows[i].Key().Key())
				}
			}
			if len(report.LoggedCleared) == 0 {
				return nil, errUnchanged
			}
			return rows, nil
		})
		if err != nil && !isUnchanged(err) {
			return report, fmt.Errorf("snapshot.Reconcile: snapshot: %w", err)
		}
	}

	sort.Strings(report.PhantomThemes)
	sort.Strings(report.Restored)
	sort.Strings(report.LoggedCleared)

	if report.Changed() {
		slog.Warn("reconciliation corrected drift",
			"phantoms", len(report.PhantomThemes),
			"adjusted", len(report.Adjusted),
			"restored", len(report.Restored),
			"logged_cleared", len(report.LoggedCleared),
		)
	} else {
		slog.Info("reconciliation clean")
	}
	return report, nil
}
