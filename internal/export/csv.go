package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/shopspring/decimal"
)

// WriteCSV serializes table in the canonical column order.
func WriteCSV(w io.Writer, table model.CandleTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.Columns); err != nil {
		return fmt.Errorf("%w: can't write csv header", err)
	}

	for i, c := range table.Rows {
		if err := cw.Write(record(c)); err != nil {
			return fmt.Errorf("%w: can't write csv row %d", err, i)
		}
	}

	cw.Flush()
	return cw.Error()
}

func CSV(table model.CandleTable) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download name offered for table.
func FileName(table model.CandleTable) string {
	symbol := strings.ToUpper(strings.TrimSpace(table.Symbol))
	if symbol == "" {
		symbol = "candles"
	}
	return symbol + ".csv"
}

func record(c model.Candle) []string {
	return []string{
		c.Date(),
		c.Clock(),
		number(c.Open),
		number(c.Close),
		number(c.High),
		number(c.Low),
		strconv.FormatInt(c.TradeCount, 10),
		number(c.Volume),
		number(c.TakerBuyBaseVolume),
		number(c.TakerBuyQuoteVolume),
		number(c.QuoteVolume),
	}
}

// number prints the shortest decimal that round-trips, without exponents.
func number(v float64) string {
	return decimal.NewFromFloat(v).String()
}
