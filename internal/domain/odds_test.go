package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalOdds(t *testing.T) {
	d, err := DecimalOdds(150)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 1e-9)

	d, err = DecimalOdds(-200)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, d, 1e-9)
}

func TestDecimalOdds_Invalid(t *testing.T) {
	for _, p := range []float64{0, 50, -99} {
		_, err := DecimalOdds(p)
		assert.ErrorIs(t, err, ErrInvalidOdds, "price %v", p)
	}
}

func TestImpliedProb(t *testing.T) {
	p, err := ImpliedProb(-110)
	require.NoError(t, err)
	assert.InDelta(t, 0.5238, p, 1e-4)

	p, err = ImpliedProb(100)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)
}

func TestProbToAmerican_RoundTrip(t *testing.T) {
	for _, price := range []float64{-250, -150, -110, 120, 180, 300} {
		p, err := ImpliedProb(price)
		require.NoError(t, err)
		assert.InDelta(t, price, ProbToAmerican(p), 1e-6)
	}
	assert.Equal(t, 0.0, ProbToAmerican(0))
	assert.Equal(t, 0.0, ProbToAmerican(1))
}
