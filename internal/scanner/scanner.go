// Package scanner orquesta el poll: fetch → evaluación concurrente →
// decisión secuencial → snapshot → dispatch.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/exposure"
	"github.com/alejandrodnm/sharpline/internal/metrics"
	"github.com/alejandrodnm/sharpline/internal/ports"
	"github.com/alejandrodnm/sharpline/internal/snapshot"
)

const (
	sourceScanner = "scanner"
	sourceBatch   = "batch"
)

// Config contiene la configuración del scanner.
type Config struct {
	PollInterval time.Duration
	Workers      int
	CycleTimeout time.Duration
	IOTimeout    time.Duration
	// Once ejecuta un único ciclo y sale.
	Once bool
	// AutoLog registra las apuestas aceptadas en el mismo poll. Desactivado,
	// las filas aceptadas quedan pendientes para el batch.
	AutoLog        bool
	BaselineMaxAge time.Duration
	Filter         FilterConfig
	Merge          snapshot.MergeConfig
	Roles          snapshot.RoleConfig
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Minute,
		CycleTimeout:   2 * time.Minute,
		IOTimeout:      30 * time.Second,
		AutoLog:        true,
		BaselineMaxAge: 72 * time.Hour,
		Filter:         DefaultFilterConfig(),
		Roles:          snapshot.DefaultRoleConfig(),
	}
}

// Deps son los colaboradores del scanner. Metrics y Dispatcher son opcionales.
type Deps struct {
	Odds       ports.OddsProvider
	Sims       ports.SimulationProvider
	Engine     *decision.Engine
	Ledger     *exposure.Ledger
	Baselines  *snapshot.Baselines
	Snapshots  *snapshot.Store
	BetLog     ports.BetLog
	Dispatcher ports.Dispatcher
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// CycleResult resume un poll.
type CycleResult struct {
	ID        string
	Rows      []domain.SnapshotRow // snapshot completo escrito
	Evaluated int
	Accepted  int
	Logged    int
	Skipped   map[domain.SkipReason]int
}

// Scanner es el orquestador principal del loop de polls.
type Scanner struct {
	cfg       Config
	deps      Deps
	evaluator *Evaluator
	filter    *Filter
}

// New crea un Scanner con todas las dependencias inyectadas.
func New(cfg Config, deps Deps) *Scanner {
	if deps.Engine == nil {
		deps.Engine = decision.NewEngine(decision.DefaultPolicy())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scanner{
		cfg:       cfg,
		deps:      deps,
		evaluator: NewEvaluator(deps.Engine),
		filter:    NewFilter(cfg.Filter),
	}
}

// Run ejecuta el loop de polls hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un ciclo.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("scanner starting",
		"interval", s.cfg.PollInterval,
		"once", s.cfg.Once,
		"auto_log", s.cfg.AutoLog,
	)

	if err := s.runCycle(ctx); err != nil {
		slog.Error("poll cycle failed", "err", err)
		if s.cfg.Once {
			return err
		}
	}

	if s.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				slog.Error("poll cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un ciclo y devuelve el resultado.
func (s *Scanner) RunOnce(ctx context.Context) (CycleResult, error) {
	return s.cycle(ctx)
}

// runCycle ejecuta un ciclo completo con su timeout y registra métricas.
func (s *Scanner) runCycle(ctx context.Context) error {
	start := time.Now()
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	res, err := s.cycle(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.deps.Metrics.RecordPoll("loop", "error", elapsed.Seconds())
		return err
	}
	s.deps.Metrics.RecordPoll("loop", "ok", elapsed.Seconds())

	slog.Info("poll cycle complete",
		"cycle_id", res.ID,
		"evaluated", res.Evaluated,
		"accepted", res.Accepted,
		"logged", res.Logged,
		"rows", len(res.Rows),
		"duration", elapsed.Round(time.Millisecond),
	)
	return nil
}

// cycle hace fetch → evaluate → anchor → decide → merge → write → dispatch.
func (s *Scanner) cycle(ctx context.Context) (CycleResult, error) {
	now := s.deps.Now()
	res := CycleResult{ID: uuid.NewString(), Skipped: make(map[domain.SkipReason]int)}

	lines, err := callIO(ctx, s.cfg.IOTimeout, s.deps.Odds.FetchOdds)
	if err != nil {
		return res, fmt.Errorf("scanner.cycle: fetch odds: %w", err)
	}
	estimates, err := callIO(ctx, s.cfg.IOTimeout, s.deps.Sims.FetchEstimates)
	if err != nil {
		return res, fmt.Errorf("scanner.cycle: fetch simulations: %w", err)
	}
	lines = s.filter.Apply(lines, now)

	anchors, err := s.deps.Baselines.All(ctx)
	if err != nil {
		return res, fmt.Errorf("scanner.cycle: load baselines: %w", err)
	}

	cands := candidates(lines, estimates)
	var fresh []domain.SnapshotRow
	for _, key := range unsimulated(lines, estimates) {
		fresh = append(fresh, domain.NewSkippedRow(key, domain.SkipNoSimulation, now))
		res.Skipped[domain.SkipNoSimulation]++
	}

	results := evaluateConcurrent(ctx, s.evaluator, cands, anchors, now, s.cfg.Workers)
	var ready []evaluated
	for _, r := range results {
		if r.reason != domain.SkipNone {
			fresh = append(fresh, domain.NewSkippedRow(r.cand.Key, r.reason, now))
			res.Skipped[r.reason]++
			continue
		}
		ready = append(ready, r)
	}

	evals, skipped, err := s.anchor(ctx, ready, now)
	if err != nil {
		return res, err
	}
	for _, row := range skipped {
		fresh = append(fresh, row)
		res.Skipped[row.SkipReason]++
	}
	res.Evaluated = len(evals)

	// La exposición se lee justo antes de decidir.
	if err := s.deps.Ledger.Refresh(ctx); err != nil {
		return res, fmt.Errorf("scanner.cycle: %w", err)
	}
	sortByEV(evals)
	for _, ev := range evals {
		row := s.decide(ctx, ev, now, &res)
		fresh = append(fresh, row)
	}

	for i := range fresh {
		snapshot.AssignRoles(&fresh[i], s.cfg.Roles)
	}
	var merged []domain.SnapshotRow
	err = s.deps.Snapshots.Update(ctx, now, func(prior []domain.SnapshotRow) ([]domain.SnapshotRow, error) {
		merged = snapshot.Merge(prior, fresh, now, s.cfg.Merge)
		return merged, nil
	})
	if err != nil {
		return res, fmt.Errorf("scanner.cycle: %w", err)
	}
	res.Rows = merged

	visible := visibleRows(merged)
	s.deps.Metrics.UpdateSnapshot(len(visible), len(merged)-len(visible))
	s.deps.Metrics.UpdateExposure(s.deps.Ledger.Snapshot())

	if s.deps.Dispatcher != nil {
		dctx, cancel := ioContext(ctx, s.cfg.IOTimeout)
		if err := s.deps.Dispatcher.Dispatch(dctx, visible); err != nil {
			slog.Warn("dispatch error", "err", err)
		}
		cancel()
	}

	if s.cfg.BaselineMaxAge > 0 {
		if n, err := s.deps.Baselines.Prune(ctx, now, s.cfg.BaselineMaxAge); err != nil {
			slog.Warn("baseline prune failed", "err", err)
		} else if n > 0 {
			slog.Debug("baselines pruned", "count", n)
		}
	}
	return res, nil
}

// anchor persiste los baselines nuevos. Si otro proceso ancló antes, el
// candidato se vuelve a evaluar contra el anchor almacenado: el movimiento
// cambia el peso del modelo y con él EV, Kelly y umbral.
func (s *Scanner) anchor(ctx context.Context, ready []evaluated, now time.Time) ([]domain.Evaluation, []domain.SnapshotRow, error) {
	evals := make([]domain.Evaluation, 0, len(ready))
	probs := make(map[string]float64)
	for _, r := range ready {
		evals = append(evals, r.eval)
		if r.eval.Movement.NewAnchor {
			probs[r.eval.Key.Key()] = r.eval.Consensus.Prob
		}
	}
	if len(probs) == 0 {
		return evals, nil, nil
	}
	stored, err := s.deps.Baselines.AnchorAll(ctx, probs, now)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner.anchor: %w", err)
	}

	out := evals[:0]
	var skipped []domain.SnapshotRow
	for _, r := range ready {
		ev := r.eval
		a, ok := stored[ev.Key.Key()]
		if !ok || !ev.Movement.NewAnchor || a.Prob == ev.Consensus.Prob {
			out = append(out, ev)
			continue
		}
		again, reason, err := s.evaluator.Evaluate(r.cand, a, now)
		if err != nil {
			slog.Debug("re-evaluation against stored anchor failed", "key", ev.Key.Key(), "err", err)
			continue
		}
		if reason != domain.SkipNone {
			skipped = append(skipped, domain.NewSkippedRow(ev.Key, reason, now))
			continue
		}
		out = append(out, again)
	}
	return out, skipped, nil
}

// decide aplica el engine con la exposición vigente y, si se acepta y
// AutoLog está activo, registra la apuesta antes de pasar a la siguiente.
func (s *Scanner) decide(ctx context.Context, ev domain.Evaluation, now time.Time, res *CycleResult) domain.SnapshotRow {
	d := s.deps.Engine.Decide(ev, s.deps.Ledger.Exposure(ev.Theme))
	row := domain.NewSnapshotRow(ev, d)

	if !d.Accept {
		res.Skipped[d.Reason]++
		if d.Deferred {
			row.QueuedAt = timePtr(now)
		}
		s.deps.Metrics.RecordDecision(string(d.Reason), "", 0)
		return row
	}

	res.Accepted++
	s.deps.Metrics.RecordDecision(string(d.Entry), string(d.Entry), d.Stake)
	slog.Info("bet accepted",
		"key", ev.Key.Key(),
		"theme", ev.Theme.String(),
		"entry", d.Entry,
		"stake", d.Stake,
		"ev_pct", fmt.Sprintf("%.2f", ev.EVPercent),
		"movement", fmt.Sprintf("%.4f", ev.Movement.Delta),
		"required", fmt.Sprintf("%.4f", ev.RequiredMove),
	)
	if !s.cfg.AutoLog {
		return row
	}
	if err := record(ctx, s.deps, s.cfg.IOTimeout, ev, d, sourceScanner, now); err != nil {
		slog.Error("bet log failed", "key", ev.Key.Key(), "err", err)
		return row
	}
	res.Logged++
	row.Logged = true
	row.LoggedAt = timePtr(now)
	return row
}

// record escribe la apuesta en el bet log y luego la suma al ledger.
// Una vez hecho el append la apuesta cuenta como registrada: si el tracker
// falla, el ledger ya subió su caché y el siguiente Refresh lo iguala al log.
func record(ctx context.Context, deps Deps, timeout time.Duration, ev domain.Evaluation, d domain.Decision, source string, now time.Time) error {
	bet := domain.NewBetRecord(ev, d, source, now)
	lctx, cancel := ioContext(ctx, timeout)
	defer cancel()
	if _, err := deps.BetLog.Append(lctx, bet); err != nil {
		return fmt.Errorf("scanner.record: append: %w", err)
	}
	if _, err := deps.Ledger.Commit(ctx, ev.Theme, d.Stake); err != nil {
		slog.Warn("exposure tracker update failed, bet log will restore it",
			"key", ev.Key.Key(), "theme", ev.Theme.String(), "stake", d.Stake, "err", err)
	}
	return nil
}

// unsimulated devuelve las claves cotizadas sin estimación del modelo.
func unsimulated(lines []domain.MarketLine, estimates map[string]domain.ModelEstimate) []domain.MarketKey {
	var out []domain.MarketKey
	seen := make(map[string]bool)
	for _, line := range lines {
		for _, o := range line.Outcomes {
			key := line.Key(o.Side)
			if _, ok := estimates[key.Key()]; ok || seen[key.Key()] {
				continue
			}
			seen[key.Key()] = true
			out = append(out, key)
		}
	}
	return out
}

// sortByEV ordena por EV descendente; empates por clave para ser deterministas.
func sortByEV(evals []domain.Evaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].EVPercent != evals[j].EVPercent {
			return evals[i].EVPercent > evals[j].EVPercent
		}
		return evals[i].Key.Key() < evals[j].Key.Key()
	})
}

func visibleRows(rows []domain.SnapshotRow) []domain.SnapshotRow {
	out := make([]domain.SnapshotRow, 0, len(rows))
	for _, r := range rows {
		if r.Visible {
			out = append(out, r)
		}
	}
	return out
}

// callIO ejecuta fn con un timeout propio por llamada.
func callIO[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := ioContext(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func ioContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
