package model

import (
	"time"
)

const (
	_dateLayout  = "2006-01-02"
	_clockLayout = "15:04:05"
)

// RawKline is one kline record as delivered by the exchange:
// [open time, open, high, low, close, volume, close time, quote volume,
// trade count, taker buy base volume, taker buy quote volume, ignore].
type RawKline []any

const RawKlineMinFields = 11

// Candle is an immutable, typed kline. Times are presented in the
// location chosen by the normalizer.
type Candle struct {
	OpenTime            time.Time `json:"open_time"`
	CloseTime           time.Time `json:"close_time"`
	Open                float64   `json:"open"`
	High                float64   `json:"high"`
	Low                 float64   `json:"low"`
	Close               float64   `json:"close"`
	Volume              float64   `json:"volume"`
	QuoteVolume         float64   `json:"quote_volume"`
	TradeCount          int64     `json:"trade_count"`
	TakerBuyBaseVolume  float64   `json:"taker_buy_base_volume"`
	TakerBuyQuoteVolume float64   `json:"taker_buy_quote_volume"`
}

// Date is the wall-clock date of the open time, without offset.
func (c Candle) Date() string {
	return c.OpenTime.Format(_dateLayout)
}

// Clock is the wall-clock time of day of the open time, without offset.
func (c Candle) Clock() string {
	return c.OpenTime.Format(_clockLayout)
}

// CandleTable holds candles of one symbol/interval, newest first.
type CandleTable struct {
	Symbol   string         `json:"symbol"`
	Interval Interval       `json:"interval"`
	Location *time.Location `json:"-"`
	Rows     []Candle       `json:"rows"`
}

func (t CandleTable) Len() int {
	return len(t.Rows)
}

func (t CandleTable) Empty() bool {
	return len(t.Rows) == 0
}

// Latest returns the most recent candle.
func (t CandleTable) Latest() (Candle, bool) {
	if t.Empty() {
		return Candle{}, false
	}
	return t.Rows[0], true
}

// High returns the maximum high over all rows, zero for an empty table.
func (t CandleTable) High() float64 {
	if t.Empty() {
		return 0
	}
	high := t.Rows[0].High
	for _, c := range t.Rows[1:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}

// Low returns the minimum low over all rows, zero for an empty table.
func (t CandleTable) Low() float64 {
	if t.Empty() {
		return 0
	}
	low := t.Rows[0].Low
	for _, c := range t.Rows[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

// Closes returns close prices in chronological order (oldest first).
func (t CandleTable) Closes() []float64 {
	closes := make([]float64, len(t.Rows))
	for i, c := range t.Rows {
		closes[len(t.Rows)-1-i] = c.Close
	}
	return closes
}

// Columns is the canonical presentation order of a table.
var Columns = []string{
	"Date",
	"Time",
	"Open",
	"Close",
	"High",
	"Low",
	"Number of trades",
	"Volume",
	"Taker buy base asset volume",
	"Taker buy quote asset volume",
	"Quote asset volume",
}
