package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/STTM-NSU/futures-signal/internal/binance"
	"github.com/STTM-NSU/futures-signal/internal/classifier"
	"github.com/STTM-NSU/futures-signal/internal/config"
	"github.com/STTM-NSU/futures-signal/internal/forecast"
	"github.com/STTM-NSU/futures-signal/internal/logger"
	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/STTM-NSU/futures-signal/internal/normalizer"
	"github.com/google/uuid"
)

type Fetcher interface {
	Klines(ctx context.Context, q binance.Query) ([]model.RawKline, error)
}

type Runner struct {
	fetcher   Fetcher
	publisher Publisher
	logger    logger.Logger

	query           binance.Query
	location        *time.Location
	risk            classifier.RiskParams
	forecastEnabled bool
	poll            config.PollConfig

	backoff Backoff
	sleep   func(ctx context.Context, d time.Duration) error
	rand    func() float64
	now     func() time.Time
}

type Option func(*Runner)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

func WithRand(rnd func() float64) Option {
	return func(r *Runner) { r.rand = rnd }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithBackoff(b Backoff) Option {
	return func(r *Runner) { r.backoff = b }
}

// NewRunner expects cfg to be validated.
func NewRunner(cfg config.Config, fetcher Fetcher, publisher Publisher, logger logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger.With("symbol", cfg.Symbol, "interval", cfg.Interval.String()),
		query: binance.Query{
			Symbol:   cfg.Symbol,
			Interval: cfg.Interval,
			Limit:    cfg.Limit,
		},
		location:        cfg.Location(),
		risk:            cfg.Risk,
		forecastEnabled: cfg.Forecast.Enabled,
		poll:            cfg.Poll,
		backoff:         ExponentialBackoff(cfg.Poll.BackoffBase, cfg.Poll.BackoffMax),
		sleep:           sleepContext,
		rand:            rand.Float64,
		now:             time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	return r
}

// Run polls until ctx is done. Cycles never overlap and a started cycle is
// finished before shutdown; only retry waits and the pause between cycles
// are cut short.
func (r *Runner) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := r.Cycle(ctx); err != nil {
			r.logger.Errorf("%s: cycle %d failed", err, cycle)
		}

		wait := withJitter(r.poll.Interval, r.poll.Jitter, r.rand())
		if err := r.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Cycle runs fetch, normalize, classify and publish once. The snapshot is
// published unless fetching or normalizing failed.
func (r *Runner) Cycle(ctx context.Context) (Snapshot, error) {
	id := uuid.NewString()
	log := r.logger.With("cycle", id)

	raw, err := r.fetch(ctx, log)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: can't fetch klines", err)
	}

	table, err := normalizer.Normalize(raw, r.location)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: can't normalize klines", err)
	}
	table.Symbol = r.query.Symbol
	table.Interval = r.query.Interval

	snap := Snapshot{
		CycleID:   id,
		Symbol:    r.query.Symbol,
		Interval:  r.query.Interval,
		Timezone:  r.location.String(),
		Status:    StatusOK,
		Table:     table,
		FetchedAt: r.now(),
	}

	readout, err := classifier.Evaluate(table, &r.risk)
	switch {
	case errors.Is(err, classifier.ErrInsufficientData):
		snap.Status = StatusNoSignal
		snap.Message = "no data available for the selected pair and time frame"
		log.Warnf("empty kline window, no signal")
		r.publisher.Publish(snap)
		return snap, nil
	case errors.Is(err, classifier.ErrInvalidRange):
		snap.Status = StatusInvalidRange
		snap.Message = err.Error()
		r.publisher.Publish(snap)
		return snap, fmt.Errorf("%w: can't classify", err)
	case err != nil:
		return Snapshot{}, fmt.Errorf("%w: can't classify", err)
	}
	snap.Readout = &readout

	if r.forecastEnabled {
		res, err := forecast.AR1(table.Closes())
		if err != nil {
			log.Debugf("%s: forecast skipped", err)
		} else {
			snap.Forecast = &res
		}
	}

	log.Infof("rows: %d, high: %v, low: %v, middle: %v, price: %v, action: %s",
		table.Len(), readout.High, readout.Low, readout.Midpoint, readout.CurrentPrice, readout.Signal)
	if snap.Forecast != nil {
		log.Infof("forecast: %v, action: %s", snap.Forecast.Forecast, snap.Forecast.Action)
	}

	r.publisher.Publish(snap)
	return snap, nil
}

// fetch retries transient failures. The request itself is not cancelled by
// shutdown; it is bounded by the client timeout instead.
func (r *Runner) fetch(ctx context.Context, log logger.Logger) ([]model.RawKline, error) {
	for attempt := 0; ; attempt++ {
		raw, err := r.fetcher.Klines(context.WithoutCancel(ctx), r.query)
		if err == nil {
			return raw, nil
		}
		if !retryable(err) || attempt >= r.poll.MaxRetries {
			return nil, err
		}

		delay := max(withJitter(r.backoff(attempt), r.poll.Jitter, r.rand()), retryAfter(err))
		log.Warnf("%s: klines request failed, retrying in %s, attempt %d", err, delay, attempt+1)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: retry aborted", err)
		}
	}
}
