package classifier

import (
	"errors"
	"fmt"

	"github.com/STTM-NSU/futures-signal/internal/model"
)

var (
	ErrInvalidRange     = errors.New("recent high is below recent low")
	ErrInsufficientData = errors.New("no candles to classify")
)

const _dangerRatio = 0.7

// DefaultCustomPcts is used when RiskParams.CustomPcts is nil.
var DefaultCustomPcts = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// RiskParams tunes the classifier. Zero percentages are treated as unset.
type RiskParams struct {
	StopLossPct   float64   `yaml:"stop_loss_pct" json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64   `yaml:"take_profit_pct" json:"take_profit_pct,omitempty"`
	EntryPrice    float64   `yaml:"entry_price" json:"entry_price,omitempty"`
	CustomPcts    []float64 `yaml:"custom_pcts" json:"custom_pcts,omitempty"`
}

func (p *RiskParams) customPcts() []float64 {
	if p == nil || p.CustomPcts == nil {
		return DefaultCustomPcts
	}
	return p.CustomPcts
}

// reference anchors percentage thresholds: the entry price when known,
// otherwise the window midpoint.
func (p *RiskParams) reference(midpoint float64) float64 {
	if p != nil && p.EntryPrice > 0 {
		return p.EntryPrice
	}
	return midpoint
}

func Midpoint(high, low float64) float64 {
	return (high + low) / 2
}

func DangerThreshold(high, low float64) float64 {
	mid := Midpoint(high, low)
	return mid + _dangerRatio*(high-mid)
}

// Classify maps the current price into a signal relative to the window's
// high/low. Rules are evaluated in a fixed order and the first match wins.
func Classify(current, high, low float64, params *RiskParams) (Signal, error) {
	if high < low {
		return Signal{}, fmt.Errorf("%w: high %v, low %v", ErrInvalidRange, high, low)
	}

	mid := Midpoint(high, low)
	if current > DangerThreshold(high, low) {
		return Signal{Kind: Danger}, nil
	}

	ref := params.reference(mid)
	if params != nil && params.TakeProfitPct > 0 && current > ref*(1+params.TakeProfitPct/100) {
		return Signal{Kind: SellTakeProfit}, nil
	}
	if params != nil && params.StopLossPct > 0 && current < ref*(1-params.StopLossPct/100) {
		return Signal{Kind: SellStopLoss}, nil
	}
	if current > mid {
		return Signal{Kind: Sell}, nil
	}

	for _, pct := range params.customPcts() {
		if current > ref*(1+pct/100) {
			return Signal{Kind: SellCustomProfit, Pct: pct}, nil
		}
		if current < ref*(1-pct/100) {
			return Signal{Kind: SellCustomLoss, Pct: pct}, nil
		}
	}

	return Signal{Kind: Buy}, nil
}

// Readout is what the presentation layer shows next to the table.
type Readout struct {
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Midpoint        float64 `json:"midpoint"`
	DangerThreshold float64 `json:"danger_threshold"`
	CurrentPrice    float64 `json:"current_price"`
	Signal          Signal  `json:"signal"`
}

// Evaluate classifies the latest close of table against the table's range.
func Evaluate(table model.CandleTable, params *RiskParams) (Readout, error) {
	latest, ok := table.Latest()
	if !ok {
		return Readout{}, ErrInsufficientData
	}

	r := Readout{
		High:         table.High(),
		Low:          table.Low(),
		CurrentPrice: latest.Close,
	}
	r.Midpoint = Midpoint(r.High, r.Low)
	r.DangerThreshold = DangerThreshold(r.High, r.Low)

	s, err := Classify(r.CurrentPrice, r.High, r.Low, params)
	if err != nil {
		return r, err
	}
	r.Signal = s

	return r, nil
}
