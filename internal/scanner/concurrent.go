package scanner

// concurrent.go: worker pool para evaluar candidatos en paralelo.
// La evaluación es pura; las decisiones se toman después, en serie.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

// evaluated es el resultado de evaluar un candidato.
type evaluated struct {
	cand   Candidate
	eval   domain.Evaluation
	reason domain.SkipReason
}

// evaluateConcurrent evalúa todos los candidatos con un pool de workers.
// Los candidatos que fallan con error se descartan y se loguean.
//
// Si workers <= 0 usa runtime.NumCPU() × 2.
func evaluateConcurrent(
	ctx context.Context,
	evaluator *Evaluator,
	cands []Candidate,
	anchors map[string]domain.BaselineAnchor,
	now time.Time,
	workers int,
) []evaluated {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan Candidate, len(cands))
	resultCh := make(chan evaluated, len(cands))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range workCh {
				if ctx.Err() != nil {
					continue
				}
				ev, reason, err := evaluator.Evaluate(c, anchors[c.Key.Key()], now)
				if err != nil {
					slog.Debug("evaluate failed",
						"key", c.Key.Key(),
						"err", err,
					)
					continue
				}
				resultCh <- evaluated{cand: c, eval: ev, reason: reason}
			}
		}()
	}

	for _, c := range cands {
		workCh <- c
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make([]evaluated, 0, len(cands))
	for r := range resultCh {
		out = append(out, r)
	}

	slog.Debug("concurrent evaluation complete",
		"candidates", len(cands),
		"evaluated", len(out),
		"workers", workers,
	)
	return out
}
