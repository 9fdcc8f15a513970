package decision_test

import (
	"testing"

	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const game = "2025-07-19-NYY@BOS-T1910"

// overEval arma la evaluación de "Over 8.5" a +110 con EV 6%.
func overEval(consensus, baseline float64) domain.Evaluation {
	key := domain.NewMarketKey(game, "totals", "Over 8.5")
	blended := 1.06 / 2.1
	ev, _ := domain.ExpectedValuePct(blended, 110)
	return domain.Evaluation{
		Key:         key,
		Theme:       domain.ThemeKeyFor(key),
		Segment:     key.Segment(),
		Class:       key.Class(),
		HoursToGame: 14,
		Consensus:   domain.ConsensusLine{Prob: consensus, Books: 1},
		BlendedProb: blended,
		Price:       110,
		EVPercent:   ev,
		RawKelly:    domain.SizeStake(blended, 110, domain.ClassMain),
		Movement:    domain.TrackMovement(consensus, domain.BaselineAnchor{Prob: baseline}),
	}
}

func TestDecide_FirstBetWhenMovementConfirms(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	ev := overEval(0.47, 0.45)
	require.InDelta(t, 6.0, ev.EVPercent, 1e-9)

	required := e.RequiredMove(ev.HoursToGame, 1, "totals", ev.EVPercent)
	assert.InDelta(t, 0.006, required, 1e-9)

	d := e.Decide(ev, 0)
	require.True(t, d.Accept, d.String())
	assert.Equal(t, domain.EntryFirst, d.Entry)
	assert.Equal(t, ev.RawKelly, d.Stake)
	assert.Equal(t, 1.36, d.Stake)
}

func TestDecide_LowTopupWithExistingExposure(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	ev := overEval(0.455, 0.45)
	ev.RawKelly = 1.3

	d := e.Decide(ev, 1.0)
	assert.False(t, d.Accept)
	assert.Equal(t, domain.SkipLowTopup, d.Reason)
	assert.True(t, d.Deferred)
	assert.InDelta(t, 0.3, d.PendingDelta, 1e-9)
	assert.Equal(t, 1.0, d.Exposure)
}

func TestDecide_TopUpSkipsConfirmation(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	ev := overEval(0.45, 0.45) // sin movimiento
	ev.RawKelly = 2.0

	d := e.Decide(ev, 1.0)
	require.True(t, d.Accept, d.String())
	assert.Equal(t, domain.EntryTopUp, d.Entry)
	assert.Equal(t, 1.0, d.Stake)
}

func TestDecide_AlreadyLogged(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	ev := overEval(0.47, 0.45)

	d := e.Decide(ev, 2.0)
	assert.Equal(t, domain.SkipAlreadyLogged, d.Reason)
	assert.NotEmpty(t, d.Detail)
}

func TestDecide_NegativeExposureTreatedAsZero(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	d := e.Decide(overEval(0.47, 0.45), -3)
	assert.Equal(t, 0.0, d.Exposure)
	assert.Equal(t, domain.EntryFirst, d.Entry)
}

func TestDecide_RejectionOrder(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())

	tests := []struct {
		name   string
		mutate func(*domain.Evaluation)
		want   domain.SkipReason
	}{
		{"game started", func(ev *domain.Evaluation) { ev.HoursToGame = 0; ev.Price = 500 }, domain.SkipGameStarted},
		{"bad odds beats low ev", func(ev *domain.Evaluation) { ev.Price = -200; ev.EVPercent = 1 }, domain.SkipBadOdds},
		{"low ev", func(ev *domain.Evaluation) { ev.EVPercent = 4.9 }, domain.SkipLowEV},
		{"not moved", func(ev *domain.Evaluation) {
			ev.Movement = domain.TrackMovement(0.44, domain.BaselineAnchor{Prob: 0.45})
		}, domain.SkipMarketNotMoved},
		{"new anchor is unconfirmed", func(ev *domain.Evaluation) {
			ev.Movement = domain.TrackMovement(0.47, domain.BaselineAnchor{})
		}, domain.SkipMarketNotMoved},
		{"moved too little", func(ev *domain.Evaluation) {
			ev.Movement = domain.TrackMovement(0.453, domain.BaselineAnchor{Prob: 0.45})
		}, domain.SkipNotConfirmed},
		{"low initial", func(ev *domain.Evaluation) { ev.RawKelly = 0.99 }, domain.SkipLowInitial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := overEval(0.47, 0.45)
			tt.mutate(&ev)
			d := e.Decide(ev, 0)
			assert.False(t, d.Accept)
			assert.Equal(t, tt.want, d.Reason)
			assert.NotEmpty(t, d.Detail)
		})
	}
}

func TestDecide_TimeBlockedLowLiquidity(t *testing.T) {
	e := decision.NewEngine(decision.DefaultPolicy())
	key := domain.NewMarketKey(game, "team_totals", "NYY Over 4.5")
	ev := domain.Evaluation{
		Key:         key,
		HoursToGame: 13,
		Consensus:   domain.ConsensusLine{Prob: 0.55, Books: 4},
		Price:       100,
		EVPercent:   9,
		RawKelly:    2,
		Movement:    domain.TrackMovement(0.55, domain.BaselineAnchor{Prob: 0.50}),
	}
	assert.Equal(t, domain.SkipTimeBlocked, e.Decide(ev, 0).Reason)

	ev.HoursToGame = 11
	assert.True(t, e.Decide(ev, 0).Accept)
}

func TestPolicy_MinEVFor(t *testing.T) {
	p := decision.DefaultPolicy()
	assert.Equal(t, 4.0, p.MinEVFor("h2h_1st_5_innings"))
	assert.Equal(t, 10.0, p.MinEVFor("totals_1st_1_innings"))
	assert.Equal(t, 8.0, p.MinEVFor("alternate_totals_1st_3_innings"))
	assert.Equal(t, 8.0, p.MinEVFor("team_totals"))
	assert.Equal(t, 5.0, p.MinEVFor("spreads"))
	assert.Equal(t, 5.0, p.MinEVFor("player_props"))
}

func TestPolicy_InBand(t *testing.T) {
	p := decision.DefaultPolicy()
	assert.True(t, p.InBand(-150))
	assert.True(t, p.InBand(200))
	assert.False(t, p.InBand(-151))
	assert.False(t, p.InBand(201))
}
