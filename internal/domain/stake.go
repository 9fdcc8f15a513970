package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	KellyMain      = 0.25
	KellyAlternate = 0.125

	// StakePrecision es la precisión de los stakes en unidades (1u = 1% del bankroll).
	StakePrecision = 2

	kellyEpsilon = 1e-12 // en el breakeven exacto el redondeo puede dejar residuo
)

// ExpectedValuePct devuelve el EV en porcentaje: (decimal × p − 1) × 100.
func ExpectedValuePct(prob, price float64) (float64, error) {
	d, err := DecimalOdds(price)
	if err != nil {
		return 0, err
	}
	return (d*prob - 1) * 100, nil
}

// KellyFraction devuelve la fracción de Kelly según la clase de mercado.
// Las alternativas usan la mitad por su mayor varianza.
func KellyFraction(class MarketClass) float64 {
	if class == ClassAlternate {
		return KellyAlternate
	}
	return KellyMain
}

// KellyUnits aplica f* = (bp − q)/b escalado por fraction, expresado en
// unidades y sin redondear. Nunca negativo.
func KellyUnits(prob, price, fraction float64) float64 {
	d, err := DecimalOdds(price)
	if err != nil || prob <= 0 || prob >= 1 {
		return 0
	}
	b := d - 1
	f := (b*prob - (1 - prob)) / b
	if f <= kellyEpsilon {
		return 0
	}
	return 100 * fraction * f
}

// SizeStake devuelve el raw Kelly redondeado a centésimas de unidad.
func SizeStake(prob, price float64, class MarketClass) float64 {
	return RoundStake(KellyUnits(prob, price, KellyFraction(class)))
}

// RoundStake redondea a la precisión de stake (half-up en decimal, sin
// arrastrar errores de coma flotante como 1.005 → 1.00).
func RoundStake(units float64) float64 {
	if math.IsNaN(units) || math.IsInf(units, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(units).Round(StakePrecision).Float64()
	return f
}
