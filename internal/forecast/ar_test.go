package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAR1RecoversProcess(t *testing.T) {
	t.Parallel()

	const c, phi = 10.0, 0.5
	closes := []float64{100}
	for i := 0; i < 20; i++ {
		closes = append(closes, c+phi*closes[len(closes)-1])
	}

	r, err := AR1(closes)
	require.NoError(t, err)
	assert.InDelta(t, phi, r.Phi, 1e-6)
	assert.InDelta(t, c, r.Const, 1e-6)
	assert.InDelta(t, c+phi*closes[len(closes)-1], r.Forecast, 1e-6)
}

func TestAR1Trending(t *testing.T) {
	t.Parallel()

	r, err := AR1([]float64{100, 101, 102, 103, 104})
	require.NoError(t, err)
	assert.InDelta(t, 105, r.Forecast, 1e-9)
	assert.Equal(t, Buy, r.Action)

	r, err = AR1([]float64{104, 103, 102, 101, 100})
	require.NoError(t, err)
	assert.InDelta(t, 99, r.Forecast, 1e-9)
	assert.Equal(t, Sell, r.Action)
}

func TestAR1Constant(t *testing.T) {
	t.Parallel()

	r, err := AR1([]float64{5, 5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, r.Forecast)
	assert.Equal(t, Sell, r.Action)
}

func TestAR1Insufficient(t *testing.T) {
	t.Parallel()

	_, err := AR1([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestDecide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Buy, Decide(10, 10.5))
	assert.Equal(t, Sell, Decide(10, 10))
	assert.Equal(t, Sell, Decide(10, 9))
}
