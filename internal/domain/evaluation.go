package domain

import (
	"fmt"
	"time"
)

// ModelEstimate es la salida del motor de simulación para una MarketKey.
type ModelEstimate struct {
	SimProb  float64 `json:"sim_prob"`
	FairOdds float64 `json:"fair_odds"`
}

// Evaluation es el registro transitorio por MarketKey y poll.
type Evaluation struct {
	Key         MarketKey
	Theme       ThemeKey
	Segment     Segment
	Class       MarketClass
	HoursToGame float64
	EvaluatedAt time.Time

	SimProb     float64
	Consensus   ConsensusLine
	BlendedProb float64
	ModelWeight float64

	BestBook  string
	Price     float64
	EVPercent float64
	RawKelly  float64 // unidades, redondeado a centésimas

	Movement     Movement
	RequiredMove float64
}

// Validate comprueba los invariantes de una evaluación.
func (e Evaluation) Validate() error {
	if e.BlendedProb <= 0 || e.BlendedProb >= 1 {
		return fmt.Errorf("evaluation %s: blended prob %.6f out of (0,1)", e.Key, e.BlendedProb)
	}
	if e.RawKelly < 0 {
		return fmt.Errorf("evaluation %s: negative raw kelly %.4f", e.Key, e.RawKelly)
	}
	return nil
}

// Confirmed reporta si el movimiento observado alcanza el requerido.
func (e Evaluation) Confirmed() bool {
	return e.Movement.Confirms(e.RequiredMove)
}

// SkipReason es el motivo estable (persistido) por el que no se registra una apuesta.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipNoConsensus    SkipReason = "no_consensus"
	SkipNoSimulation   SkipReason = "no_simulation"
	SkipGameStarted    SkipReason = "game_started"
	SkipBadOdds        SkipReason = "bad_odds"
	SkipLowEV          SkipReason = "low_ev"
	SkipNotConfirmed   SkipReason = "not_confirmed"
	SkipMarketNotMoved SkipReason = "market_not_moved"
	SkipTimeBlocked    SkipReason = "time_blocked"
	SkipLowInitial     SkipReason = "low_initial"
	SkipLowTopup       SkipReason = "low_topup"
	SkipAlreadyLogged  SkipReason = "already_logged"
)

var skipDescriptions = map[SkipReason]string{
	SkipNoConsensus:    "no usable book prices for consensus",
	SkipNoSimulation:   "no simulation estimate for market",
	SkipGameStarted:    "game already started",
	SkipBadOdds:        "price outside allowed odds band",
	SkipLowEV:          "EV below segment minimum",
	SkipNotConfirmed:   "market moved less than required",
	SkipMarketNotMoved: "market has not moved toward the bet",
	SkipTimeBlocked:    "too early for low-liquidity segment",
	SkipLowInitial:     "first stake below minimum",
	SkipLowTopup:       "top-up below minimum",
	SkipAlreadyLogged:  "theme exposure already at target",
}

// Describe devuelve el texto legible que acompaña a la fila.
func (r SkipReason) Describe() string {
	if d, ok := skipDescriptions[r]; ok {
		return d
	}
	return string(r)
}

// EntryType es el tipo de registro aceptado.
type EntryType string

const (
	EntryFirst EntryType = "first"
	EntryTopUp EntryType = "top-up"
)

// Decision es el veredicto del motor para una evaluación.
type Decision struct {
	Accept       bool
	Entry        EntryType
	Stake        float64 // unidades a registrar si Accept
	Reason       SkipReason
	Detail       string
	Exposure     float64 // exposición del tema al decidir
	Deferred     bool    // low_topup pendiente de acumular
	PendingDelta float64
}

// String resume el veredicto para logs y tablas.
func (d Decision) String() string {
	if d.Accept {
		return fmt.Sprintf("%s %.2fu", d.Entry, d.Stake)
	}
	if d.Detail != "" {
		return fmt.Sprintf("skip %s (%s)", d.Reason, d.Detail)
	}
	return "skip " + string(d.Reason)
}
