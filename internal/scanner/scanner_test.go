package scanner_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sharpline/internal/adapters/filestore"
	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/alejandrodnm/sharpline/internal/exposure"
	"github.com/alejandrodnm/sharpline/internal/metrics"
	"github.com/alejandrodnm/sharpline/internal/scanner"
	"github.com/alejandrodnm/sharpline/internal/snapshot"
)

// --- mocks ---

type mockOdds struct {
	lines []domain.MarketLine
	err   error
}

func (m *mockOdds) FetchOdds(_ context.Context) ([]domain.MarketLine, error) {
	return m.lines, m.err
}

type mockSims struct {
	estimates map[string]domain.ModelEstimate
	err       error
}

func (m *mockSims) FetchEstimates(_ context.Context) (map[string]domain.ModelEstimate, error) {
	return m.estimates, m.err
}

type mockDispatcher struct {
	rows []domain.SnapshotRow
	err  error
}

func (m *mockDispatcher) Dispatch(_ context.Context, rows []domain.SnapshotRow) error {
	m.rows = rows
	return m.err
}

type mockBetLog struct {
	mu   sync.Mutex
	bets []domain.BetRecord
	err  error
}

func (m *mockBetLog) Append(_ context.Context, bet domain.BetRecord) (domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.BetRecord{}, m.err
	}
	bet.ID = "bet-" + bet.Key.Key()
	m.bets = append(m.bets, bet)
	return bet, nil
}

func (m *mockBetLog) Bets(_ context.Context, _ time.Time) ([]domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BetRecord(nil), m.bets...), nil
}

func (m *mockBetLog) StakeByTheme(_ context.Context, _ time.Time) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64)
	for _, b := range m.bets {
		out[b.ThemeKey] = domain.RoundStake(out[b.ThemeKey] + b.Stake)
	}
	return out, nil
}

func (m *mockBetLog) Close() error { return nil }

// hookKV envuelve un JSONStore: puede fallar las próximas escrituras, ocultar
// su contenido en el próximo All o ejecutar una acción antes de él.
type hookKV[V any] struct {
	*filestore.JSONStore[V]

	mu          sync.Mutex
	failUpdates int
	hideNextAll bool
	beforeAll   func()
}

func (k *hookKV[V]) All(ctx context.Context) (map[string]V, error) {
	k.mu.Lock()
	hook, hide := k.beforeAll, k.hideNextAll
	k.beforeAll, k.hideNextAll = nil, false
	k.mu.Unlock()
	if hook != nil {
		hook()
	}
	if hide {
		return map[string]V{}, nil
	}
	return k.JSONStore.All(ctx)
}

func (k *hookKV[V]) Update(ctx context.Context, fn func(map[string]V) error) error {
	k.mu.Lock()
	fail := k.failUpdates > 0
	if fail {
		k.failUpdates--
	}
	k.mu.Unlock()
	if fail {
		return filestore.ErrLockTimeout
	}
	return k.JSONStore.Update(ctx, fn)
}

// --- fixtures ---

const game = "2025-07-19-NYY@BOS-T1910"

var (
	// 12:00 ET, 7h10m antes del partido.
	poll1 = time.Date(2025, 7, 19, 16, 0, 0, 0, time.UTC)
	poll2 = poll1.Add(5 * time.Minute)
	theme = domain.ThemeKey{GameID: game, Theme: "Over_total", Segment: domain.SegmentFullGame}
	over  = domain.NewMarketKey(game, "totals", "Over")
)

// totalsLine arma Over/Under 8.5 con tres casas al mismo precio y, si
// extraOver != 0, una casa extra que solo cotiza el Over.
func totalsLine(overPrice, underPrice, extraOver float64) domain.MarketLine {
	books := []string{"betmgm", "caesars", "draftkings"}
	var overQ, underQ []domain.BookQuote
	for _, b := range books {
		overQ = append(overQ, domain.BookQuote{Book: b, Price: overPrice})
		underQ = append(underQ, domain.BookQuote{Book: b, Price: underPrice})
	}
	if extraOver != 0 {
		overQ = append(overQ, domain.BookQuote{Book: "fanduel", Price: extraOver})
	}
	return domain.MarketLine{
		GameID: game,
		Market: "totals",
		Point:  8.5,
		Outcomes: []domain.Outcome{
			{Side: "Over", Quotes: overQ},
			{Side: "Under", Quotes: underQ},
		},
	}
}

type harness struct {
	odds       *mockOdds
	sims       *mockSims
	dispatcher *mockDispatcher
	betLog     *mockBetLog
	tracker    *hookKV[float64]
	baselines  *hookKV[domain.BaselineAnchor]
	ledger     *exposure.Ledger
	snapshots  *snapshot.Store
	metrics    *metrics.Metrics
	deps       scanner.Deps
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	opts := filestore.Options{ReadRetries: -1, LockTimeout: time.Second}

	h := &harness{
		odds:       &mockOdds{lines: []domain.MarketLine{totalsLine(100, -120, 0)}},
		sims:       &mockSims{estimates: map[string]domain.ModelEstimate{over.Key(): {SimProb: 0.66}}},
		dispatcher: &mockDispatcher{},
		betLog:     &mockBetLog{},
		tracker:    &hookKV[float64]{JSONStore: filestore.NewJSONStore[float64](filepath.Join(dir, "exposure.json"), opts)},
		baselines:  &hookKV[domain.BaselineAnchor]{JSONStore: filestore.NewJSONStore[domain.BaselineAnchor](filepath.Join(dir, "baselines.json"), opts)},
		snapshots:  snapshot.NewStore(filepath.Join(dir, "snapshot.json"), opts),
		metrics:    metrics.New(),
		now:        poll1,
	}
	h.ledger = exposure.NewLedger(h.tracker)
	require.NoError(t, h.ledger.Seed(context.Background(), h.betLog, poll1.Add(-24*time.Hour)))
	h.deps = scanner.Deps{
		Odds:       h.odds,
		Sims:       h.sims,
		Engine:     decision.NewEngine(decision.DefaultPolicy()),
		Ledger:     h.ledger,
		Baselines:  snapshot.NewBaselines(h.baselines),
		Snapshots:  h.snapshots,
		BetLog:     h.betLog,
		Dispatcher: h.dispatcher,
		Metrics:    h.metrics,
		Now:        func() time.Time { return h.now },
	}
	return h
}

func (h *harness) scanner(autoLog bool) *scanner.Scanner {
	cfg := scanner.DefaultConfig()
	cfg.Workers = 2
	cfg.AutoLog = autoLog
	return scanner.New(cfg, h.deps)
}

func findRow(t *testing.T, rows []domain.SnapshotRow, key domain.MarketKey) domain.SnapshotRow {
	t.Helper()
	for _, r := range rows {
		if r.Key() == key {
			return r
		}
	}
	t.Fatalf("row %s not found", key)
	return domain.SnapshotRow{}
}

// --- tests ---

func TestScanner_RunOnce_FirstPollAnchorsBaseline(t *testing.T) {
	h := newHarness(t)

	res, err := h.scanner(true).RunOnce(context.Background())
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	assert.Equal(t, domain.SkipMarketNotMoved, row.SkipReason)
	assert.InDelta(t, 0.4782608, row.Baseline, 1e-6)
	assert.InDelta(t, 9.81, row.EVPercent, 0.01)
	assert.Equal(t, domain.DirectionSame, row.Direction)
	assert.Empty(t, h.betLog.bets)

	under := findRow(t, res.Rows, domain.NewMarketKey(game, "totals", "Under"))
	assert.Equal(t, domain.SkipNoSimulation, under.SkipReason)
	assert.Equal(t, "no simulation estimate for market", under.SkipDetail)

	assert.Len(t, h.dispatcher.rows, 2)
}

func TestScanner_RunOnce_FirstThenLowTopupThenTopUp(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(true)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	// El consenso del Over sube de 0.478 a 0.500: confirma la primera entrada.
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	require.True(t, row.Accepted, row.SkipDetail)
	assert.Equal(t, domain.EntryFirst, row.EntryType)
	assert.Equal(t, 1.59, row.Stake)
	assert.InDelta(t, 0.0217391, row.Movement, 1e-6)
	assert.InDelta(t, 0.00293945, row.RequiredMove, 1e-8)
	assert.True(t, row.Logged)
	require.NotNil(t, row.LoggedAt)
	assert.Equal(t, 1, res.Logged)
	assert.Equal(t, 1.59, h.ledger.Exposure(theme))
	require.Len(t, h.betLog.bets, 1)
	assert.Equal(t, "scanner", h.betLog.bets[0].Source)

	// Mismo precio: el tema ya tiene su stake objetivo.
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	row = findRow(t, res.Rows, over)
	assert.Equal(t, domain.SkipAlreadyLogged, row.SkipReason)
	assert.True(t, row.Logged, "logged flag survives merge")

	// Una casa mejora el Over a -106: delta 0.45u, por debajo del mínimo.
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, -106)}
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	row = findRow(t, res.Rows, over)
	assert.Equal(t, domain.SkipLowTopup, row.SkipReason)
	assert.True(t, row.Deferred)
	assert.Equal(t, 0.45, row.PendingDelta)
	assert.Equal(t, "fanduel", row.BestBook)
	assert.True(t, row.HasRole(domain.RoleBestBook))
	require.NotNil(t, row.QueuedAt)
	assert.Equal(t, 1.59, h.ledger.Exposure(theme))

	// A -102 el delta supera 0.5u: top-up sin volver a exigir confirmación.
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, -102)}
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	row = findRow(t, res.Rows, over)
	require.True(t, row.Accepted, row.SkipDetail)
	assert.Equal(t, domain.EntryTopUp, row.EntryType)
	assert.Equal(t, 0.9, row.Stake)
	assert.Equal(t, 2.49, h.ledger.Exposure(theme))
	assert.Len(t, h.betLog.bets, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DecisionsTotal.WithLabelValues("top-up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DecisionsTotal.WithLabelValues("low_topup")))
}

func TestScanner_RunOnce_BaselineIsNeverRewritten(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(true)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	// El consenso baja: el baseline sigue siendo el primero observado.
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(110, -130, 0)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	assert.InDelta(t, 0.4782608, row.Baseline, 1e-6)
	assert.Equal(t, domain.DirectionDown, row.Direction)
	assert.InDelta(t, row.ConsensusProb-row.Baseline, row.Movement, 1e-6)
	assert.True(t, poll1.Equal(row.FirstSeen), "first seen kept from first poll")
}

func TestScanner_RunOnce_FetchErrors(t *testing.T) {
	h := newHarness(t)
	h.odds.err = errors.New("upstream down")

	_, err := h.scanner(true).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch odds")

	h.odds.err = nil
	h.sims.err = errors.New("no sims")
	_, err = h.scanner(true).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch simulations")
}

func TestScanner_RunOnce_BetLogFailureDoesNotCommit(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(true)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	h.betLog.err = errors.New("disk full")
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	assert.True(t, row.Accepted)
	assert.False(t, row.Logged)
	assert.Zero(t, h.ledger.Exposure(theme))
}

func TestScanner_RunOnce_TrackerFailureDoesNotRelog(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(true)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)

	// La apuesta llega al bet log pero el tracker rechaza la escritura.
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	h.tracker.failUpdates = 1
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	require.True(t, row.Accepted, row.SkipDetail)
	assert.True(t, row.Logged)
	assert.Equal(t, 1, res.Logged)
	assert.Equal(t, 1.59, h.ledger.Exposure(theme))

	// El siguiente poll ve la exposición del bet log y no repite la entrada.
	h.now = poll2.Add(5 * time.Minute)
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	row = findRow(t, res.Rows, over)
	assert.Equal(t, domain.SkipAlreadyLogged, row.SkipReason)
	assert.Len(t, h.betLog.bets, 1)

	stored, err := h.tracker.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.59, stored[theme.String()])
}

func TestScanner_RunOnce_KeepsConcurrentBatchResult(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(false)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, findRow(t, res.Rows, over).Accepted)

	// El batch registra la fila mientras el poll siguiente está en curso.
	batch := scanner.NewBatch(h.deps, time.Second)
	h.baselines.beforeAll = func() {
		out, err := batch.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, out.Logged)
	}
	res, err = s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	assert.True(t, row.Logged)
	assert.Equal(t, domain.SkipAlreadyLogged, row.SkipReason)
	assert.Len(t, h.betLog.bets, 1)

	rows, err := h.snapshots.Load(ctx)
	require.NoError(t, err)
	assert.True(t, findRow(t, rows, over).Logged)
}

func TestScanner_RunOnce_ReevaluatesAgainstStoredAnchor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Otro proceso ancló 0.45 pero este poll leyó los baselines antes.
	stored := domain.BaselineAnchor{Prob: 0.45, FirstSeen: poll1.Add(-time.Hour)}
	require.NoError(t, h.baselines.Put(ctx, over.Key(), stored))
	h.baselines.hideNextAll = true

	res, err := h.scanner(false).RunOnce(ctx)
	require.NoError(t, err)

	line := totalsLine(100, -120, 0)
	want, reason, err := scanner.NewEvaluator(h.deps.Engine).Evaluate(scanner.Candidate{
		Key:      over,
		Line:     line,
		Side:     "Over",
		Estimate: domain.ModelEstimate{SimProb: 0.66},
	}, stored, poll1)
	require.NoError(t, err)
	require.Equal(t, domain.SkipNone, reason)

	row := findRow(t, res.Rows, over)
	assert.Equal(t, 0.45, row.Baseline)
	assert.InDelta(t, want.Movement.Delta, row.Movement, 1e-12)
	assert.InDelta(t, want.ModelWeight, row.ModelWeight, 1e-12)
	assert.InDelta(t, want.BlendedProb, row.BlendedProb, 1e-12)
	assert.InDelta(t, want.EVPercent, row.EVPercent, 1e-12)
	assert.InDelta(t, want.RawKelly, row.RawKelly, 1e-12)
	assert.InDelta(t, want.RequiredMove, row.RequiredMove, 1e-12)
	assert.Equal(t, domain.DirectionUp, row.Direction)

	anchors, err := h.deps.Baselines.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.45, anchors[over.Key()].Prob)
}

func TestScanner_RunOnce_StartedGame(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2025, 7, 19, 23, 30, 0, 0, time.UTC) // 19:30 ET

	res, err := h.scanner(true).RunOnce(context.Background())
	require.NoError(t, err)
	row := findRow(t, res.Rows, over)
	assert.Equal(t, domain.SkipGameStarted, row.SkipReason)
}

func TestScanner_RunOnce_CorruptSnapshotStartsFresh(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, writeFile(h.snapshots.Path(), "{not json"))

	res, err := h.scanner(true).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)

	rows, err := h.snapshots.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestScanner_Run_OnceReturns(t *testing.T) {
	h := newHarness(t)
	cfg := scanner.DefaultConfig()
	cfg.Once = true
	s := scanner.New(cfg, h.deps)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PollsTotal.WithLabelValues("ok")))
}

// --- batch ---

func TestBatch_LogsPendingRows(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(false)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	row := findRow(t, res.Rows, over)
	require.True(t, row.Accepted)
	require.False(t, row.Logged)
	assert.Empty(t, h.betLog.bets)

	batch := scanner.NewBatch(h.deps, time.Second)
	out, err := batch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Pending)
	assert.Equal(t, 1, out.Logged)
	assert.Equal(t, 1.59, out.Stake)
	require.Len(t, h.betLog.bets, 1)
	assert.Equal(t, "batch", h.betLog.bets[0].Source)
	assert.Equal(t, 1.59, h.ledger.Exposure(theme))

	rows, err := h.snapshots.Load(ctx)
	require.NoError(t, err)
	row = findRow(t, rows, over)
	assert.True(t, row.Logged)

	// Segunda corrida: nada pendiente.
	out, err = batch.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Pending)
	assert.Len(t, h.betLog.bets, 1)
}

func TestBatch_RequiredMoveMatchesScanner(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(false)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)

	for _, row := range res.Rows {
		if row.SkipReason == domain.SkipNoSimulation {
			continue
		}
		ev := scanner.EvaluationFromRow(row, h.deps.Engine, h.now)
		assert.Equal(t, row.RequiredMove, ev.RequiredMove, row.Key().Key())
		assert.Equal(t, row.Accepted, h.deps.Engine.Decide(ev, 0).Accept)
	}
}

func TestBatch_DeferredMicroTopUpAccumulates(t *testing.T) {
	h := newHarness(t)
	s := h.scanner(true)
	ctx := context.Background()

	_, err := s.RunOnce(ctx)
	require.NoError(t, err)
	h.now = poll2
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, 0)}
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.59, h.ledger.Exposure(theme))

	// Delta de 0.45u: queda diferido.
	h.odds.lines = []domain.MarketLine{totalsLine(-110, -110, -106)}
	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	row := findRow(t, res.Rows, over)
	require.True(t, row.Deferred)
	require.Equal(t, 0.45, row.PendingDelta)

	// El batch suma el delta pendiente al objetivo y supera el mínimo.
	out, err := scanner.NewBatch(h.deps, time.Second).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Pending)
	assert.Equal(t, 1, out.Logged)
	assert.Equal(t, 0.9, out.Stake)
	assert.Equal(t, 2.49, h.ledger.Exposure(theme))
	require.Len(t, h.betLog.bets, 2)
	assert.Equal(t, domain.EntryTopUp, h.betLog.bets[1].Entry)

	rows, err := h.snapshots.Load(ctx)
	require.NoError(t, err)
	row = findRow(t, rows, over)
	assert.False(t, row.Deferred)
	assert.Zero(t, out.Skipped[domain.SkipLowTopup])
}
