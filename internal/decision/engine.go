// Package decision consolida la lógica de confirmación y staking en un único
// motor puro, compartido por el scanner y el batch.
package decision

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// Engine decide si una evaluación se registra como first, top-up o se salta.
// No tiene estado: la exposición del tema llega como argumento.
type Engine struct {
	policy Policy
}

// NewEngine crea un Engine con la política dada.
func NewEngine(policy Policy) *Engine {
	if policy.MinEV == nil {
		policy.MinEV = DefaultPolicy().MinEV
	}
	return &Engine{policy: policy}
}

// Policy devuelve la política en uso.
func (e *Engine) Policy() Policy { return e.policy }

// RequiredMove es el único punto de cálculo del umbral de movimiento.
func (e *Engine) RequiredMove(hoursToGame float64, books int, market string, evPercent float64) float64 {
	return domain.RequiredMove(domain.ConfirmationInput{
		HoursToGame: hoursToGame,
		Books:       books,
		Market:      market,
		EVPercent:   evPercent,
	})
}

// Decide aplica las reglas en orden:
//
//	game_started → bad_odds → low_ev → confirmación (solo sin exposición) →
//	time_blocked → first / top-up / low_initial / low_topup / already_logged
func (e *Engine) Decide(ev domain.Evaluation, themeExposure float64) domain.Decision {
	exposure := math.Max(themeExposure, 0)
	d := domain.Decision{Exposure: exposure}
	market := ev.Key.Market

	if ev.HoursToGame <= 0 {
		return skip(d, domain.SkipGameStarted, "")
	}

	if !e.policy.InBand(ev.Price) {
		return skip(d, domain.SkipBadOdds,
			fmt.Sprintf("price %+.0f outside [%+.0f, %+.0f]", ev.Price, e.policy.MinPrice, e.policy.MaxPrice))
	}

	if minEV := e.policy.MinEVFor(market); ev.EVPercent < minEV {
		return skip(d, domain.SkipLowEV, fmt.Sprintf("EV %.2f%% < %.2f%%", ev.EVPercent, minEV))
	}

	if exposure == 0 {
		required := e.RequiredMove(ev.HoursToGame, ev.Consensus.Books, market, ev.EVPercent)
		if !ev.Movement.Confirms(required) {
			reason := domain.SkipNotConfirmed
			if ev.Movement.Direction != domain.DirectionUp {
				reason = domain.SkipMarketNotMoved
			}
			return skip(d, reason, fmt.Sprintf("moved %.4f, need %.4f", ev.Movement.Delta, required))
		}
	}

	if domain.LowLiquidity(market) && ev.HoursToGame > e.policy.LowLiquidityMaxHours {
		return skip(d, domain.SkipTimeBlocked,
			fmt.Sprintf("%.1fh to game > %.0fh", ev.HoursToGame, e.policy.LowLiquidityMaxHours))
	}

	if exposure == 0 {
		stake := domain.RoundStake(ev.RawKelly)
		if stake < e.policy.MinFirstStake {
			return skip(d, domain.SkipLowInitial, fmt.Sprintf("stake %.2fu < %.2fu", stake, e.policy.MinFirstStake))
		}
		d.Accept, d.Entry, d.Stake = true, domain.EntryFirst, stake
		return d
	}

	delta := domain.RoundStake(ev.RawKelly - exposure)
	switch {
	case delta >= e.policy.MinTopUpStake:
		d.Accept, d.Entry, d.Stake = true, domain.EntryTopUp, delta
		return d
	case delta > 0:
		d.Deferred, d.PendingDelta = true, delta
		return skip(d, domain.SkipLowTopup, fmt.Sprintf("delta %.2fu < %.2fu", delta, e.policy.MinTopUpStake))
	default:
		return skip(d, domain.SkipAlreadyLogged, fmt.Sprintf("exposure %.2fu >= target %.2fu", exposure, ev.RawKelly))
	}
}

func skip(d domain.Decision, reason domain.SkipReason, detail string) domain.Decision {
	d.Accept = false
	d.Reason = reason
	d.Detail = detail
	if d.Detail == "" {
		d.Detail = reason.Describe()
	}
	return d
}
