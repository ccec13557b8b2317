package pipeline

import (
	"time"

	"github.com/STTM-NSU/futures-signal/internal/classifier"
	"github.com/STTM-NSU/futures-signal/internal/forecast"
	"github.com/STTM-NSU/futures-signal/internal/model"
)

type Status string

const (
	StatusOK           Status = "ok"
	StatusNoSignal     Status = "no_signal"
	StatusInvalidRange Status = "invalid_range"
)

// Snapshot is everything one cycle hands to the presentation layer.
type Snapshot struct {
	CycleID   string              `json:"cycle_id"`
	Symbol    string              `json:"symbol"`
	Interval  model.Interval      `json:"interval"`
	Timezone  string              `json:"timezone"`
	Status    Status              `json:"status"`
	Table     model.CandleTable   `json:"table"`
	Readout   *classifier.Readout `json:"readout,omitempty"`
	Forecast  *forecast.Result    `json:"forecast,omitempty"`
	Message   string              `json:"message,omitempty"`
	FetchedAt time.Time           `json:"fetched_at"`
}

type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot)

func (f PublisherFunc) Publish(s Snapshot) {
	f(s)
}
