package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/STTM-NSU/futures-signal/internal/config"
	"github.com/STTM-NSU/futures-signal/internal/logger"
	"github.com/STTM-NSU/futures-signal/internal/model"
	"github.com/bytedance/sonic"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	_klinesURL    = "/fapi/v1/klines"
	_apiKeyHeader = "X-MBX-APIKEY"
	_retryAfter   = "Retry-After"
)

var (
	ErrAPI          = errors.New("binance api error")
	ErrInvalidQuery = errors.New("invalid kline query")
)

// numbers stay json.Number so open times and prices are not rounded on decode
var _json = sonic.Config{UseNumber: true}.Froze()

func decodeJSON(r io.Reader, v any) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return _json.Unmarshal(buf, v)
}

type Query struct {
	Symbol   string
	Interval model.Interval
	Limit    int
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.Symbol) == "" {
		return &queryError{reason: "empty symbol"}
	}
	if !q.Interval.Valid() {
		return &queryError{reason: fmt.Sprintf("unsupported interval %q", q.Interval)}
	}
	if q.Limit < model.MinLimit || q.Limit > model.MaxLimit {
		return &queryError{reason: fmt.Sprintf("limit %d out of [%d, %d]", q.Limit, model.MinLimit, model.MaxLimit)}
	}
	return nil
}

type queryError struct {
	reason string
}

func (e *queryError) Error() string   { return fmt.Sprintf("%s: %s", ErrInvalidQuery, e.reason) }
func (e *queryError) Unwrap() error   { return ErrInvalidQuery }
func (e *queryError) Temporary() bool { return false }

// APIError is the exchange error payload plus the http status.
type APIError struct {
	StatusCode int           `json:"-"`
	Code       int           `json:"code"`
	Message    string        `json:"msg"`
	Wait       time.Duration `json:"-"` // from Retry-After, zero if absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d, code %d: %s", ErrAPI, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusTeapot ||
		e.StatusCode >= http.StatusInternalServerError
}

// RetryAfter is how long the exchange asked us to back off.
func (e *APIError) RetryAfter() time.Duration {
	return e.Wait
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type Client struct {
	c           *resty.Client
	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

func NewClient(cfg config.ExchangeConfig, creds config.Credentials, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		AddContentTypeDecoder("json", decodeJSON)
	if !creds.IsEmpty() {
		client.SetHeader(_apiKeyHeader, creds.APIKey)
	}

	return &Client{
		c:           client,
		rateLimiter: ratelimit.New(cfg.WeightPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

func (c *Client) Close() error {
	return c.c.Close()
}

// klineWeight is the request weight binance charges for a kline call.
func klineWeight(limit int) int {
	switch {
	case limit < 100:
		return 1
	case limit < 500:
		return 2
	case limit <= 1000:
		return 5
	default:
		return 10
	}
}

// curl "https://fapi.binance.com/fapi/v1/klines?symbol=BTCUSDT&interval=1m&limit=60"
func (c *Client) Klines(ctx context.Context, q Query) ([]model.RawKline, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	for range klineWeight(q.Limit) {
		c.rateLimiter.Take()
	}

	var klines []model.RawKline
	req := c.c.R().
		SetQueryParams(map[string]string{
			"symbol":   strings.ToUpper(q.Symbol),
			"interval": q.Interval.String(),
			"limit":    strconv.Itoa(q.Limit),
		}).
		SetResult(&klines).
		SetError(&APIError{}).
		SetContext(ctx)

	resp, err := req.Get(_klinesURL)
	if err != nil {
		return nil, fmt.Errorf("%w: can't send klines request", err)
	}
	defer resp.Body.Close()

	c.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil {
			apiErr = &APIError{}
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		apiErr.StatusCode = resp.StatusCode()
		apiErr.Wait = parseRetryAfter(resp.Header().Get(_retryAfter))
		return nil, apiErr
	}
	if resp.IsSuccess() {
		return klines, nil
	}

	return nil, fmt.Errorf("%w: unexpected klines response status: %s", ErrAPI, resp.Status())
}
