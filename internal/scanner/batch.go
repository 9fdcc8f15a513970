package scanner

// batch.go: registro diferido de filas pendientes del snapshot.
//
// Una fila está pendiente si fue aceptada pero no registrada (scanner con
// AutoLog desactivado) o si quedó como top-up diferido. El batch la vuelve a
// decidir con el mismo Engine y el mismo Ledger que el poll, así que el
// umbral de confirmación es idéntico en ambos caminos.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

// BatchResult resume una corrida del batch.
type BatchResult struct {
	Pending int
	Logged  int
	Stake   float64
	Skipped map[domain.SkipReason]int
}

// Batch registra las filas pendientes del snapshot.
type Batch struct {
	deps      Deps
	ioTimeout time.Duration
}

// NewBatch crea un Batch. Usa Engine, Ledger, Snapshots, BetLog y Metrics de deps.
func NewBatch(deps Deps, ioTimeout time.Duration) *Batch {
	if deps.Engine == nil {
		deps.Engine = decision.NewEngine(decision.DefaultPolicy())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Batch{deps: deps, ioTimeout: ioTimeout}
}

// Run relee el snapshot bajo lock, decide cada fila pendiente en orden de EV
// descendente y marca como registradas las aceptadas.
func (b *Batch) Run(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	now := b.deps.Now()
	res := BatchResult{Skipped: make(map[domain.SkipReason]int)}

	if err := b.deps.Ledger.Refresh(ctx); err != nil {
		return res, fmt.Errorf("scanner.Batch.Run: %w", err)
	}

	err := b.deps.Snapshots.Update(ctx, now, func(rows []domain.SnapshotRow) ([]domain.SnapshotRow, error) {
		idx := make(map[string]int, len(rows))
		var evals []domain.Evaluation
		for i, row := range rows {
			if !pending(row) {
				continue
			}
			idx[row.Key().Key()] = i
			evals = append(evals, EvaluationFromRow(row, b.deps.Engine, now))
		}
		res.Pending = len(evals)
		sortByEV(evals)

		for _, ev := range evals {
			row := &rows[idx[ev.Key.Key()]]
			d := b.deps.Engine.Decide(ev, b.deps.Ledger.Exposure(ev.Theme))
			row.RequiredMove = ev.RequiredMove
			row.HoursToGame = ev.HoursToGame

			if !d.Accept {
				row.ApplyDecision(d)
				res.Skipped[d.Reason]++
				b.deps.Metrics.RecordDecision(string(d.Reason), "", 0)
				continue
			}
			if err := record(ctx, b.deps, b.ioTimeout, ev, d, sourceBatch, now); err != nil {
				slog.Error("batch bet log failed", "key", ev.Key.Key(), "err", err)
				continue
			}
			row.ApplyDecision(d)
			row.Logged = true
			row.LoggedAt = timePtr(now)
			res.Logged++
			res.Stake = domain.RoundStake(res.Stake + d.Stake)
			b.deps.Metrics.RecordDecision(string(d.Entry), string(d.Entry), d.Stake)
			slog.Info("batch bet logged",
				"key", ev.Key.Key(),
				"entry", d.Entry,
				"stake", d.Stake,
			)
		}
		return rows, nil
	})
	if err != nil {
		b.deps.Metrics.RecordPoll("batch", "error", time.Since(start).Seconds())
		return res, fmt.Errorf("scanner.Batch.Run: %w", err)
	}
	b.deps.Metrics.RecordPoll("batch", "ok", time.Since(start).Seconds())
	b.deps.Metrics.UpdateExposure(b.deps.Ledger.Snapshot())
	return res, nil
}

// pending reporta si la fila espera registro.
func pending(row domain.SnapshotRow) bool {
	if !row.Visible {
		return false
	}
	return (row.Accepted && !row.Logged) || row.Deferred
}

// EvaluationFromRow reconstruye la evaluación persistida en una fila. Las
// horas al partido se recalculan a now y el umbral sale del engine. En filas
// diferidas el Kelly incluye el delta pendiente.
func EvaluationFromRow(row domain.SnapshotRow, engine *decision.Engine, now time.Time) domain.Evaluation {
	key := row.Key()
	hours, err := domain.HoursToGame(key.GameID, now)
	if err != nil {
		hours = row.HoursToGame
	}
	theme := domain.ParseThemeKey(row.ThemeKey)
	if theme.Theme == "" {
		theme = domain.ThemeKeyFor(key)
	}

	ev := domain.Evaluation{
		Key:         key,
		Theme:       theme,
		Segment:     key.Segment(),
		Class:       key.Class(),
		HoursToGame: hours,
		EvaluatedAt: row.LastSeen,
		SimProb:     row.SimProb,
		Consensus: domain.ConsensusLine{
			Prob:      row.ConsensusProb,
			FairPrice: row.FairPrice,
			Books:     row.ConsensusBooks,
			Method:    row.PricingMethod,
		},
		BlendedProb: row.BlendedProb,
		ModelWeight: row.ModelWeight,
		BestBook:    row.BestBook,
		Price:       row.Price,
		EVPercent:   row.EVPercent,
		RawKelly:    row.RawKelly,
		Movement: domain.Movement{
			Baseline:  row.Baseline,
			Current:   row.ConsensusProb,
			Delta:     row.Movement,
			Direction: row.Direction,
		},
	}
	// Un top-up diferido suma su delta pendiente al objetivo: los micro
	// top-ups se acumulan hasta superar el mínimo.
	if row.Deferred && row.PendingDelta > 0 {
		ev.RawKelly = domain.RoundStake(row.RawKelly + row.PendingDelta)
	}
	ev.RequiredMove = engine.RequiredMove(ev.HoursToGame, ev.Consensus.Books, key.Market, ev.EVPercent)
	return ev
}
