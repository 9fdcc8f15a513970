package scanner

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/sharpline/internal/decision"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

// Candidate es un lado de una línea con estimación del modelo.
type Candidate struct {
	Key      domain.MarketKey
	Line     domain.MarketLine
	Side     string
	Estimate domain.ModelEstimate
}

// Evaluator produce la Evaluation de un candidato. Es puro: no toca el
// ledger ni los archivos, así que puede correr en paralelo.
type Evaluator struct {
	engine *decision.Engine
}

// NewEvaluator crea un Evaluator que usa el umbral del engine dado.
func NewEvaluator(engine *decision.Engine) *Evaluator {
	return &Evaluator{engine: engine}
}

// Evaluate calcula consenso → blend → EV/Kelly → movimiento → umbral.
// Devuelve un SkipReason distinto de vacío cuando no se puede evaluar.
func (e *Evaluator) Evaluate(c Candidate, anchor domain.BaselineAnchor, now time.Time) (domain.Evaluation, domain.SkipReason, error) {
	hours, err := domain.HoursToGame(c.Key.GameID, now)
	if err != nil {
		if c.Line.CommenceTime.IsZero() {
			return domain.Evaluation{}, domain.SkipNone, fmt.Errorf("scanner.Evaluate: %s: %w", c.Key, err)
		}
		hours = c.Line.CommenceTime.Sub(now).Hours()
	}

	consensus, ok := domain.PriceConsensus(c.Line, c.Side)
	if !ok {
		return domain.Evaluation{}, domain.SkipNoConsensus, nil
	}
	best, ok := domain.BestQuote(c.Line, c.Side)
	if !ok {
		return domain.Evaluation{}, domain.SkipNoConsensus, nil
	}

	movement := domain.TrackMovement(consensus.Prob, anchor)
	blended, weight := domain.Blend(domain.BlendInput{
		SimProb:       c.Estimate.SimProb,
		ConsensusProb: consensus.Prob,
		HoursToGame:   hours,
		Market:        c.Key.Market,
		BookSpread:    consensus.Spread,
		Movement:      movement.Delta,
	})

	evPct, err := domain.ExpectedValuePct(blended, best.Price)
	if err != nil {
		return domain.Evaluation{}, domain.SkipBadOdds, nil
	}
	class := c.Key.Class()

	ev := domain.Evaluation{
		Key:          c.Key,
		Theme:        domain.ThemeKeyFor(c.Key),
		Segment:      c.Key.Segment(),
		Class:        class,
		HoursToGame:  hours,
		EvaluatedAt:  now,
		SimProb:      c.Estimate.SimProb,
		Consensus:    consensus,
		BlendedProb:  blended,
		ModelWeight:  weight,
		BestBook:     best.Book,
		Price:        best.Price,
		EVPercent:    evPct,
		RawKelly:     domain.SizeStake(blended, best.Price, class),
		Movement:     movement,
		RequiredMove: e.engine.RequiredMove(hours, consensus.Books, c.Key.Market, evPct),
	}
	if err := ev.Validate(); err != nil {
		return domain.Evaluation{}, domain.SkipNone, fmt.Errorf("scanner.Evaluate: %w", err)
	}
	return ev, domain.SkipNone, nil
}

// candidates arma los candidatos de las líneas que tienen estimación.
func candidates(lines []domain.MarketLine, estimates map[string]domain.ModelEstimate) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, line := range lines {
		for _, o := range line.Outcomes {
			key := line.Key(o.Side)
			est, ok := estimates[key.Key()]
			if !ok || seen[key.Key()] {
				continue
			}
			seen[key.Key()] = true
			out = append(out, Candidate{Key: key, Line: line, Side: o.Side, Estimate: est})
		}
	}
	return out
}
