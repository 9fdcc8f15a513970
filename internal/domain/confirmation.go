package domain

import "math"

// MovementUnit es el umbral base de movimiento en puntos de probabilidad.
const MovementUnit = 0.0045

// ConfirmationInput es la entrada de RequiredMove. Las dos rutas que deciden
// (scanner y batch) construyen esta misma estructura.
type ConfirmationInput struct {
	HoursToGame float64
	Books       int
	Market      string
	EVPercent   float64
}

// TimeMultiplier: más de 6h antes del partido se exige proporcionalmente más.
func TimeMultiplier(hours float64) float64 {
	return 1 + math.Max((hours-6)/24, 0)
}

// BookMultiplier: con menos de 3 casas se exige más movimiento.
func BookMultiplier(books int) float64 {
	return 1 + 0.3*math.Max(float64(3-books), 0)
}

// SegmentAdjustment descuenta los mercados principales de partido completo y
// penaliza los derivados con poca liquidez.
func SegmentAdjustment(market string, evPercent float64) float64 {
	if LowLiquidity(market) {
		return 1.5
	}
	if SegmentOf(market) == SegmentFullGame {
		switch FamilyOf(market) {
		case FamilyTotal, FamilySpread, FamilyH2H:
			if evPercent >= 10 && evPercent <= 20 {
				return 0.25
			}
			return 0.5
		}
	}
	return 1
}

// EVAdjustment afloja el umbral con EV alto y lo endurece en la franja 5–7%.
func EVAdjustment(evPercent float64) float64 {
	switch {
	case evPercent >= 12:
		return 0.8
	case evPercent >= 5 && evPercent <= 7:
		return 1.25
	}
	return 1
}

// RequiredMove calcula el movimiento mínimo de consenso para confirmar una
// primera apuesta. Orden fijo: tiempo, casas, segmento, EV.
func RequiredMove(in ConfirmationInput) float64 {
	move := MovementUnit
	move *= TimeMultiplier(in.HoursToGame)
	move *= BookMultiplier(in.Books)
	move *= SegmentAdjustment(in.Market, in.EVPercent)
	move *= EVAdjustment(in.EVPercent)
	return move
}
