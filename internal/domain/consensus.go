package domain

import (
	"math"
	"sort"
	"time"
)

// BookQuote es el precio americano de una casa para un lado en un instante.
type BookQuote struct {
	Book  string
	Price float64
}

// Outcome es un lado de una línea con las cotizaciones de cada casa.
// Fallback es un precio "best effort" usado solo cuando ninguna casa cotiza.
type Outcome struct {
	Side     string
	Quotes   []BookQuote
	Fallback float64
}

// MarketLine agrupa los lados complementarios de un mismo mercado y punto
// (Over 8.5 / Under 8.5, o los dos equipos de un h2h). En spreads Point es
// el punto del local.
type MarketLine struct {
	GameID       string
	Market       string
	Point        float64
	CommenceTime time.Time
	Outcomes     []Outcome
}

// Key devuelve la MarketKey del lado dado dentro de la línea.
func (l MarketLine) Key(side string) MarketKey {
	return NewMarketKey(l.GameID, l.Market, side)
}

// PricingMethod describe cómo se obtuvo el consenso.
type PricingMethod string

const (
	MethodPerBook  PricingMethod = "per_book" // de-vig por casa y promedio
	MethodPooled   PricingMethod = "pooled"   // promedio por lado y luego de-vig
	MethodImplied  PricingMethod = "implied"  // sin complemento, implícita cruda
	MethodFallback PricingMethod = "fallback" // casa sintética
)

// ConsensusLine es el precio de consenso sin vig de un lado.
type ConsensusLine struct {
	Prob      float64
	FairPrice float64
	Books     int
	Method    PricingMethod
	Spread    float64 // desviación estándar de la prob. justa entre casas
}

// PriceConsensus calcula el consenso sin vig del lado indicado.
// Devuelve ok=false cuando no hay ningún precio utilizable (no_consensus).
// Es determinista: las casas se recorren en orden alfabético.
func PriceConsensus(line MarketLine, side string) (ConsensusLine, bool) {
	target := -1
	want := NormalizeSide(side)
	for i, o := range line.Outcomes {
		if NormalizeSide(o.Side) == want {
			target = i
			break
		}
	}
	if target < 0 {
		return ConsensusLine{}, false
	}

	// implied[book][outcome]
	implied := make(map[string]map[int]float64)
	for i, o := range line.Outcomes {
		for _, q := range o.Quotes {
			p, err := ImpliedProb(q.Price)
			if err != nil || q.Book == "" {
				continue
			}
			if implied[q.Book] == nil {
				implied[q.Book] = make(map[int]float64)
			}
			implied[q.Book][i] = p
		}
	}
	books := make([]string, 0, len(implied))
	for b := range implied {
		books = append(books, b)
	}
	sort.Strings(books)

	n := len(line.Outcomes)

	// 1. De-vig por casa: solo casas que cotizan todos los lados.
	if n >= 2 {
		var fair []float64
		for _, b := range books {
			probs := implied[b]
			if len(probs) != n {
				continue
			}
			var sum float64
			for i := 0; i < n; i++ {
				sum += probs[i]
			}
			if sum <= 0 {
				continue
			}
			fair = append(fair, probs[target]/sum)
		}
		if len(fair) > 0 {
			return newConsensus(mean(fair), len(fair), MethodPerBook, stddev(fair))
		}
	}

	// 2. Pooled: promedio por lado, luego normalización.
	perOutcome := make([][]float64, n)
	for _, b := range books {
		for i, p := range implied[b] {
			perOutcome[i] = append(perOutcome[i], p)
		}
	}
	if len(perOutcome[target]) > 0 {
		complete := n >= 2
		for i := 0; i < n; i++ {
			if len(perOutcome[i]) == 0 {
				complete = false
			}
		}
		if complete {
			var sum float64
			for i := 0; i < n; i++ {
				sum += mean(perOutcome[i])
			}
			return newConsensus(mean(perOutcome[target])/sum, len(perOutcome[target]), MethodPooled, stddev(perOutcome[target]))
		}
		// 3. Sin complemento: implícita cruda.
		return newConsensus(mean(perOutcome[target]), len(perOutcome[target]), MethodImplied, stddev(perOutcome[target]))
	}

	// 4. Casa sintética con los precios best effort.
	return fallbackConsensus(line, target)
}

func fallbackConsensus(line MarketLine, target int) (ConsensusLine, bool) {
	p, err := ImpliedProb(line.Outcomes[target].Fallback)
	if err != nil {
		return ConsensusLine{}, false
	}
	sum := p
	complete := len(line.Outcomes) >= 2
	for i, o := range line.Outcomes {
		if i == target {
			continue
		}
		q, err := ImpliedProb(o.Fallback)
		if err != nil {
			complete = false
			break
		}
		sum += q
	}
	if complete {
		p /= sum
	}
	return newConsensus(p, 1, MethodFallback, 0)
}

func newConsensus(prob float64, books int, method PricingMethod, spread float64) (ConsensusLine, bool) {
	if math.IsNaN(prob) || prob <= 0 || prob >= 1 {
		return ConsensusLine{}, false
	}
	return ConsensusLine{
		Prob:      prob,
		FairPrice: ProbToAmerican(prob),
		Books:     books,
		Method:    method,
		Spread:    spread,
	}, true
}

// BestQuote devuelve la mejor cotización (mayor pago) para el lado indicado.
// Empates se resuelven por nombre de casa para ser deterministas.
func BestQuote(line MarketLine, side string) (BookQuote, bool) {
	want := NormalizeSide(side)
	var best BookQuote
	bestDec := 0.0
	found := false
	for _, o := range line.Outcomes {
		if NormalizeSide(o.Side) != want {
			continue
		}
		for _, q := range o.Quotes {
			d, err := DecimalOdds(q.Price)
			if err != nil {
				continue
			}
			if !found || d > bestDec || (d == bestDec && q.Book < best.Book) {
				best, bestDec, found = q, d, true
			}
		}
		if !found && ValidPrice(o.Fallback) {
			return BookQuote{Book: "fallback", Price: o.Fallback}, true
		}
	}
	return best, found
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return math.Sqrt(s / float64(len(xs)))
}
