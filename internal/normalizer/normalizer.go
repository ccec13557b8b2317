package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/shopspring/decimal"
)

var ErrMalformedRecord = errors.New("malformed kline record")

// MalformedRecordError points at the offending field of a raw record.
type MalformedRecordError struct {
	Row   int
	Field string
	Value any
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: row %d field %q value %v: %s", ErrMalformedRecord, e.Row, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: row %d field %q value %v", ErrMalformedRecord, e.Row, e.Field, e.Value)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// raw record positions
const (
	_openTime = iota
	_open
	_high
	_low
	_close
	_volume
	_closeTime
	_quoteVolume
	_tradeCount
	_takerBuyBaseVolume
	_takerBuyQuoteVolume
)

var _fieldNames = [...]string{
	_openTime:            "Open time",
	_open:                "Open",
	_high:                "High",
	_low:                 "Low",
	_close:               "Close",
	_volume:              "Volume",
	_closeTime:           "Close time",
	_quoteVolume:         "Quote asset volume",
	_tradeCount:          "Number of trades",
	_takerBuyBaseVolume:  "Taker buy base asset volume",
	_takerBuyQuoteVolume: "Taker buy quote asset volume",
}

// Normalize converts raw exchange records into a table ordered newest first,
// with times presented in loc (UTC when loc is nil). An empty input yields an
// empty table. Price consistency (low <= high) is not validated.
func Normalize(raw []model.RawKline, loc *time.Location) (model.CandleTable, error) {
	if loc == nil {
		loc = time.UTC
	}

	rows := make([]model.Candle, 0, len(raw))
	for i, r := range raw {
		c, err := normalizeRecord(i, r, loc)
		if err != nil {
			return model.CandleTable{Location: loc}, err
		}
		rows = append(rows, c)
	}

	slices.SortStableFunc(rows, func(a, b model.Candle) int {
		return b.OpenTime.Compare(a.OpenTime)
	})

	return model.CandleTable{
		Location: loc,
		Rows:     rows,
	}, nil
}

func normalizeRecord(row int, r model.RawKline, loc *time.Location) (model.Candle, error) {
	if len(r) < model.RawKlineMinFields {
		return model.Candle{}, &MalformedRecordError{
			Row:   row,
			Field: "record",
			Value: len(r),
			Err:   fmt.Errorf("expected at least %d fields", model.RawKlineMinFields),
		}
	}

	var (
		c      model.Candle
		floats = map[int]*float64{
			_open:                &c.Open,
			_high:                &c.High,
			_low:                 &c.Low,
			_close:               &c.Close,
			_volume:              &c.Volume,
			_quoteVolume:         &c.QuoteVolume,
			_takerBuyBaseVolume:  &c.TakerBuyBaseVolume,
			_takerBuyQuoteVolume: &c.TakerBuyQuoteVolume,
		}
	)

	for idx := _open; idx <= _takerBuyQuoteVolume; idx++ {
		dst, ok := floats[idx]
		if !ok {
			continue
		}
		v, err := toFloat(r[idx])
		if err != nil {
			return model.Candle{}, &MalformedRecordError{Row: row, Field: _fieldNames[idx], Value: r[idx], Err: err}
		}
		*dst = v
	}

	openMs, err := toInt(r[_openTime])
	if err != nil {
		return model.Candle{}, &MalformedRecordError{Row: row, Field: _fieldNames[_openTime], Value: r[_openTime], Err: err}
	}
	closeMs, err := toInt(r[_closeTime])
	if err != nil {
		return model.Candle{}, &MalformedRecordError{Row: row, Field: _fieldNames[_closeTime], Value: r[_closeTime], Err: err}
	}
	c.TradeCount, err = toInt(r[_tradeCount])
	if err != nil {
		return model.Candle{}, &MalformedRecordError{Row: row, Field: _fieldNames[_tradeCount], Value: r[_tradeCount], Err: err}
	}

	c.OpenTime = time.UnixMilli(openMs).In(loc)
	c.CloseTime = time.UnixMilli(closeMs).In(loc)

	return c, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("not a finite number")
		}
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case json.Number:
		return parseDecimal(string(t))
	case string:
		return parseDecimal(t)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(t), nil
	case json.Number:
		return parseInt(string(t))
	case string:
		return parseInt(t)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("not an integer")
	}
	return d.IntPart(), nil
}
