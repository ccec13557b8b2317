package forecast

import (
	"errors"
	"fmt"
	"math"
)

var ErrInsufficientData = errors.New("not enough closes to fit a forecast")

const _minPoints = 3

// Result of a one-step AR(1) forecast x[t] = Const + Phi*x[t-1].
type Result struct {
	Const    float64 `json:"const"`
	Phi      float64 `json:"phi"`
	Last     float64 `json:"last"`
	Forecast float64 `json:"forecast"`
	Action   Action  `json:"action"`
}

type Action string

const (
	Buy  Action = "Buy"
	Sell Action = "Sell"
)

// Decide recommends buying when the forecast is above the current price.
func Decide(current, forecast float64) Action {
	if forecast > current {
		return Buy
	}
	return Sell
}

// AR1 fits the series (oldest first) by conditional least squares and
// forecasts one step ahead. A constant series forecasts its last value.
func AR1(closes []float64) (Result, error) {
	if len(closes) < _minPoints {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(closes), _minPoints)
	}

	var (
		n            = float64(len(closes) - 1)
		sumX, sumY   float64
		sumXX, sumXY float64
	)
	for i := 1; i < len(closes); i++ {
		x, y := closes[i-1], closes[i]
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}

	last := closes[len(closes)-1]
	r := Result{Last: last}

	meanX, meanY := sumX/n, sumY/n
	varX := sumXX/n - meanX*meanX
	if varX <= 1e-12*math.Max(1, meanX*meanX) {
		r.Const = last
		r.Forecast = last
	} else {
		r.Phi = (sumXY/n - meanX*meanY) / varX
		r.Const = meanY - r.Phi*meanX
		r.Forecast = r.Const + r.Phi*last
	}
	r.Action = Decide(last, r.Forecast)

	return r, nil
}
