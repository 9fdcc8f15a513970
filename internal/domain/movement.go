package domain

import (
	"math"
	"time"
)

// MovementEpsilon es la zona muerta para clasificar la dirección.
const MovementEpsilon = 1e-4

// Direction es la dirección del consenso respecto al baseline.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionSame Direction = "same"
)

// BaselineAnchor es la primera probabilidad de consenso observada para una
// MarketKey. Una vez fijada no se sobreescribe.
type BaselineAnchor struct {
	Prob      float64   `json:"prob"`
	FirstSeen time.Time `json:"first_seen"`
}

// IsZero reporta si el anchor no está fijado.
func (b BaselineAnchor) IsZero() bool { return b.Prob <= 0 }

// Movement es el movimiento del consenso contra el baseline.
type Movement struct {
	Baseline  float64
	Current   float64
	Delta     float64
	Direction Direction
	NewAnchor bool // el baseline se acaba de fijar con el valor actual
}

// TrackMovement compara el consenso actual con el baseline. Sin baseline,
// el valor actual pasa a ser el baseline y el movimiento es "same".
func TrackMovement(current float64, anchor BaselineAnchor) Movement {
	if anchor.IsZero() {
		return Movement{Baseline: current, Current: current, Direction: DirectionSame, NewAnchor: true}
	}
	delta := current - anchor.Prob
	dir := DirectionSame
	switch {
	case delta > MovementEpsilon:
		dir = DirectionUp
	case delta < -MovementEpsilon:
		dir = DirectionDown
	}
	return Movement{Baseline: anchor.Prob, Current: current, Delta: delta, Direction: dir}
}

// Confirms reporta si el movimiento alcanza el umbral requerido.
func (m Movement) Confirms(required float64) bool {
	return m.Direction == DirectionUp && m.Delta >= required
}

// Abs devuelve el tamaño del movimiento.
func (m Movement) Abs() float64 { return math.Abs(m.Delta) }
