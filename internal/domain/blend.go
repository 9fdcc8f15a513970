package domain

import "math"

const (
	// Peso del modelo a 0h y a 24h o más; interpolación lineal entre ambos.
	MinModelWeight = 0.30
	MaxModelWeight = 0.60

	spreadTolerance   = 0.015 // desacuerdo entre casas que se considera ruido
	maxSpreadBoost    = 0.10
	derivativeBoost   = 0.05
	maxMovementCut    = 0.05
	weightFloor       = 0.10
	weightCeiling     = 0.90
	probabilityMargin = 1e-4
)

// BlendInput reúne lo necesario para combinar modelo y mercado.
type BlendInput struct {
	SimProb       float64
	ConsensusProb float64
	HoursToGame   float64
	Market        string
	BookSpread    float64 // opcional: desviación estándar entre casas
	Movement      float64 // opcional: movimiento observado contra el baseline
}

// ModelWeight calcula w_model.
//
//   - Decrece a medida que se acerca el partido (más peso al mercado).
//   - Sube cuando las casas no se ponen de acuerdo: un consenso disperso es
//     menos fiable y el modelo pasa a pesar más.
//   - Sube en segmentos derivados y líneas alternativas.
//   - Baja con movimientos grandes del consenso, que son información del mercado.
func ModelWeight(in BlendInput) float64 {
	h := math.Max(in.HoursToGame, 0)
	frac := math.Min(h/24, 1)
	w := MinModelWeight + (MaxModelWeight-MinModelWeight)*frac

	if in.BookSpread > spreadTolerance {
		w += math.Min((in.BookSpread-spreadTolerance)*5, maxSpreadBoost)
	}
	if in.Market != "" && (LowLiquidity(in.Market) || ClassOf(in.Market) == ClassAlternate) {
		w += derivativeBoost
	}
	if m := math.Abs(in.Movement); m > 0 {
		w -= math.Min(m*2.5, maxMovementCut)
	}
	return clamp(w, weightFloor, weightCeiling)
}

// Blend devuelve la probabilidad combinada y el peso usado. Es la única
// probabilidad que se usa para EV y stake.
func Blend(in BlendInput) (prob, weight float64) {
	weight = ModelWeight(in)
	prob = weight*in.SimProb + (1-weight)*in.ConsensusProb
	return clamp(prob, probabilityMargin, 1-probabilityMargin), weight
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
