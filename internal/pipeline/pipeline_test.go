package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/STTM-NSU/futures-signal/internal/binance"
	"github.com/STTM-NSU/futures-signal/internal/classifier"
	"github.com/STTM-NSU/futures-signal/internal/config"
	"github.com/STTM-NSU/futures-signal/internal/logger"
	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/STTM-NSU/futures-signal/internal/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	raw []model.RawKline
	err error
}

type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	queries []binance.Query
}

func (f *fakeFetcher) Klines(ctx context.Context, q binance.Query) ([]model.RawKline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if len(f.results) == 0 {
		return nil, errors.New("no more results")
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res.raw, res.err
}

type recorder struct {
	snapshots []Snapshot
}

func (r *recorder) Publish(s Snapshot) {
	r.snapshots = append(r.snapshots, s)
}

type temporaryError struct{ temporary bool }

func (e temporaryError) Error() string   { return "temporary: " + strconv.FormatBool(e.temporary) }
func (e temporaryError) Temporary() bool { return e.temporary }

func kline(openMs int64, high, low, closePrice float64) model.RawKline {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return model.RawKline{
		json.Number(strconv.FormatInt(openMs, 10)), f(closePrice), f(high), f(low), f(closePrice), "1",
		json.Number(strconv.FormatInt(openMs+59_999, 10)), "1", json.Number("1"), "1", "1", "0",
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Symbol = "BTCUSDT"
	cfg.Timezone = "UTC"
	cfg.Poll.MaxRetries = 2
	cfg.Poll.BackoffBase = 100 * time.Millisecond
	cfg.Poll.BackoffMax = time.Second
	require.NoError(t, cfg.ValidateAndSetup())
	return cfg
}

func newTestRunner(t *testing.T, cfg config.Config, f Fetcher, p Publisher, delays *[]time.Duration) *Runner {
	t.Helper()

	return NewRunner(cfg, f, p, logger.NewNop(),
		WithRand(func() float64 { return 0.5 }),
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return ctx.Err()
		}),
	)
}

func TestCycle(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{
		kline(1_700_000_000_000, 110, 90, 95),
		kline(1_700_000_060_000, 106, 100, 105),
	}}}}
	rec := &recorder{}
	var delays []time.Duration

	cfg := testConfig(t)
	cfg.Forecast.Enabled = true
	snap, err := newTestRunner(t, cfg, f, rec, &delays).Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, StatusOK, snap.Status)
	assert.NotEmpty(t, snap.CycleID)
	assert.Equal(t, "BTCUSDT", snap.Table.Symbol)
	assert.Equal(t, model.OneMinute, snap.Table.Interval)
	assert.Equal(t, "UTC", snap.Timezone)
	require.NotNil(t, snap.Readout)
	assert.Equal(t, 105.0, snap.Readout.CurrentPrice)
	assert.Equal(t, classifier.Signal{Kind: classifier.Sell}, snap.Readout.Signal)
	assert.Nil(t, snap.Forecast, "two closes are not enough to forecast")

	require.Len(t, f.queries, 1)
	assert.Equal(t, binance.Query{Symbol: "BTCUSDT", Interval: model.OneMinute, Limit: model.DefaultLimit}, f.queries[0])
	assert.Empty(t, delays)
}

func TestCycleForecast(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{
		kline(1_700_000_000_000, 101, 99, 100),
		kline(1_700_000_060_000, 102, 100, 101),
		kline(1_700_000_120_000, 103, 101, 102),
		kline(1_700_000_180_000, 104, 102, 103),
	}}}}
	cfg := testConfig(t)
	cfg.Forecast.Enabled = true
	var delays []time.Duration

	snap, err := newTestRunner(t, cfg, f, &recorder{}, &delays).Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Forecast)
	assert.InDelta(t, 104, snap.Forecast.Forecast, 1e-9)
}

func TestCycleEmptyTableIsNoSignal(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{}}}}
	rec := &recorder{}
	var delays []time.Duration

	snap, err := newTestRunner(t, testConfig(t), f, rec, &delays).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNoSignal, snap.Status)
	assert.Nil(t, snap.Readout)
	require.Len(t, rec.snapshots, 1)
}

func TestCycleMalformedIsNotPublished(t *testing.T) {
	t.Parallel()

	bad := kline(1_700_000_000_000, 110, 90, 95)
	bad[1] = "not-a-number"
	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{bad}}}}
	rec := &recorder{}
	var delays []time.Duration

	_, err := newTestRunner(t, testConfig(t), f, rec, &delays).Cycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalizer.ErrMalformedRecord))
	assert.Empty(t, rec.snapshots)
	assert.Len(t, f.queries, 1, "malformed data is not retried")
}

func TestCycleInvalidRangePublishesTable(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{kline(1_700_000_000_000, 90, 110, 100)}}}}
	rec := &recorder{}
	var delays []time.Duration

	snap, err := newTestRunner(t, testConfig(t), f, rec, &delays).Cycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, classifier.ErrInvalidRange))
	assert.Equal(t, StatusInvalidRange, snap.Status)
	assert.Nil(t, snap.Readout)
	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, 1, rec.snapshots[0].Table.Len())
}

func TestCycleRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{
		{err: temporaryError{temporary: true}},
		{err: errors.New("connection reset")},
		{raw: []model.RawKline{kline(1_700_000_000_000, 110, 90, 95)}},
	}}
	rec := &recorder{}
	var delays []time.Duration

	_, err := newTestRunner(t, testConfig(t), f, rec, &delays).Cycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.queries, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	assert.Len(t, rec.snapshots, 1)
}

func TestCycleGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{err: errors.New("timeout")}}}
	rec := &recorder{}
	var delays []time.Duration

	_, err := newTestRunner(t, testConfig(t), f, rec, &delays).Cycle(context.Background())
	require.Error(t, err)
	assert.Len(t, f.queries, 3)
	assert.Len(t, delays, 2)
	assert.Empty(t, rec.snapshots)
}

func TestCycleDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{{err: temporaryError{temporary: false}}}}
	var delays []time.Duration

	_, err := newTestRunner(t, testConfig(t), f, &recorder{}, &delays).Cycle(context.Background())
	require.Error(t, err)
	assert.Len(t, f.queries, 1)
	assert.Empty(t, delays)
}

func TestCycleHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{results: []fetchResult{
		{err: &binance.APIError{StatusCode: 429, Wait: 3 * time.Second}},
		{raw: []model.RawKline{kline(1_700_000_000_000, 110, 90, 95)}},
	}}
	var delays []time.Duration

	_, err := newTestRunner(t, testConfig(t), f, &recorder{}, &delays).Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, delays)
}

func TestRunStopsBetweenCycles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{results: []fetchResult{{raw: []model.RawKline{kline(1_700_000_000_000, 110, 90, 95)}}}}
	var published int
	pub := PublisherFunc(func(Snapshot) {
		published++
		if published == 3 {
			cancel()
		}
	})

	var delays []time.Duration
	r := newTestRunner(t, testConfig(t), f, pub, &delays)

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 3, published, "every started cycle completes")
	assert.Len(t, f.queries, 3)
	require.Len(t, delays, 3)
	assert.Equal(t, time.Second, delays[0], "poll interval with centred jitter")
}

func TestRunSurvivesFailedCycles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{results: []fetchResult{
		{err: temporaryError{temporary: false}},
		{raw: []model.RawKline{kline(1_700_000_000_000, 110, 90, 95)}},
	}}
	pub := PublisherFunc(func(Snapshot) { cancel() })

	var delays []time.Duration
	require.NoError(t, newTestRunner(t, testConfig(t), f, pub, &delays).Run(ctx))
	assert.Len(t, f.queries, 2)
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := ExponentialBackoff(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b(0))
	assert.Equal(t, 200*time.Millisecond, b(1))
	assert.Equal(t, 800*time.Millisecond, b(3))
	assert.Equal(t, time.Second, b(4))
	assert.Equal(t, time.Second, b(50))
}

func TestWithJitter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, withJitter(time.Second, 0.2, 0.5))
	assert.Equal(t, 800*time.Millisecond, withJitter(time.Second, 0.2, 0))
	assert.Equal(t, time.Second, withJitter(time.Second, 0, 0.9))
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, retryable(errors.New("eof")))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(&binance.APIError{StatusCode: 400}))
	assert.True(t, retryable(&binance.APIError{StatusCode: 503}))
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Zero(t, retryAfter(errors.New("eof")))
	err := fmt.Errorf("%w: wrapped", &binance.APIError{StatusCode: 418, Wait: time.Minute})
	assert.Equal(t, time.Minute, retryAfter(err))
}
