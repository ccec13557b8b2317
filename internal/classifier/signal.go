package classifier

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Kind int

const (
	Buy Kind = iota
	Sell
	Danger
	SellTakeProfit
	SellStopLoss
	SellCustomProfit
	SellCustomLoss
)

// Signal is a discrete recommendation. Pct is set only for the custom kinds.
type Signal struct {
	Kind Kind    `json:"kind"`
	Pct  float64 `json:"pct,omitempty"`
}

func (s Signal) String() string {
	switch s.Kind {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	case Danger:
		return "Danger"
	case SellTakeProfit:
		return "Sell (take profit)"
	case SellStopLoss:
		return "Sell (stop loss)"
	case SellCustomProfit:
		return fmt.Sprintf("Sell (custom profit %s%%)", decimal.NewFromFloat(s.Pct).String())
	case SellCustomLoss:
		return fmt.Sprintf("Sell (custom loss %s%%)", decimal.NewFromFloat(s.Pct).String())
	default:
		return fmt.Sprintf("Kind(%d)", int(s.Kind))
	}
}

func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
