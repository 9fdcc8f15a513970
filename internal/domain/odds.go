package domain

import (
	"errors"
	"math"
)

// ErrInvalidOdds se devuelve cuando un precio americano no es válido (|precio| < 100).
var ErrInvalidOdds = errors.New("invalid american odds")

// ValidPrice reporta si el precio americano es utilizable.
func ValidPrice(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && math.Abs(price) >= 100
}

// DecimalOdds convierte odds americanas a decimales.
//
//	+150 → 2.50    -200 → 1.50
func DecimalOdds(price float64) (float64, error) {
	if !ValidPrice(price) {
		return 0, ErrInvalidOdds
	}
	if price > 0 {
		return 1 + price/100, nil
	}
	return 1 + 100/math.Abs(price), nil
}

// ImpliedProb devuelve la probabilidad implícita (con vig) de un precio americano.
func ImpliedProb(price float64) (float64, error) {
	if !ValidPrice(price) {
		return 0, ErrInvalidOdds
	}
	if price > 0 {
		return 100 / (price + 100), nil
	}
	a := math.Abs(price)
	return a / (a + 100), nil
}

// ProbToAmerican convierte una probabilidad justa a precio americano.
// Devuelve 0 si p está fuera de (0,1).
func ProbToAmerican(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	if p >= 0.5 {
		return -(p / (1 - p)) * 100
	}
	return ((1 - p) / p) * 100
}
