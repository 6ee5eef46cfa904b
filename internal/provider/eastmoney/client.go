package eastmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"trend-data/internal/instrument"
	"trend-data/internal/model"
)

const (
	fields1 = "f1,f2,f3,f4,f5,f6,f7,f8,f9,f10,f11,f12,f13"
	fields2 = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"

	// forward-adjusted prices
	adjustForward = 1

	dateParam = "20060102"
)

// ErrNoData is returned when the vendor has no klines for the secid and window.
var ErrNoData = errors.New("no data")

// LogFunc emits a log line. When set, used instead of slog (fan-in logger).
type LogFunc func(msg string)

// Client fetches klines from the Eastmoney push2his endpoint.
type Client struct {
	http    *resty.Client
	limiter *IntervalLimiter
	LogFunc LogFunc
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL  string
	timeout  time.Duration
	interval time.Duration
}

// WithBaseURL points the client at another host (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithMinInterval spaces consecutive requests across all callers.
func WithMinInterval(d time.Duration) Option {
	return func(c *clientConfig) { c.interval = d }
}

// NewClient constructs a Client with a shared resty client.
func NewClient(opts ...Option) *Client {
	cfg := &clientConfig{baseURL: defaultBaseURL, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		http:    newRestyClient(cfg.baseURL, cfg.timeout),
		limiter: NewIntervalLimiter(cfg.interval),
	}
}

func (c *Client) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.LogFunc != nil {
		c.LogFunc(msg)
	} else {
		slog.Debug(msg)
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// FetchBars returns the klines of id for [begin, end]. A response without data or
// without klines yields ErrNoData.
func (c *Client) FetchBars(ctx context.Context, id instrument.Identity, begin, end time.Time, g model.Granularity) ([]model.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := map[string]string{
		"fields1": fields1,
		"fields2": fields2,
		"beg":     begin.Format(dateParam),
		"end":     end.Format(dateParam),
		"rtntype": "6",
		"secid":   id.SecID(),
		"klt":     strconv.Itoa(g.KLineType()),
		"fqt":     strconv.Itoa(adjustForward),
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(klinePath)
	if err != nil {
		return nil, fmt.Errorf("kline request %s %s: %w", id.SecID(), g, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("kline request %s %s: status %d: %s", id.SecID(), g, resp.StatusCode(), truncate(resp.String(), 200))
	}

	var body klineResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("parse kline JSON %s %s: %w", id.SecID(), g, err)
	}
	var data klineData
	if len(body.Data) > 0 {
		if err := json.Unmarshal(body.Data, &data); err != nil {
			c.logf("[%s] unusable %s data field: %s", id.SecID(), g, truncate(string(body.Data), 80))
			return nil, ErrNoData
		}
	}
	if len(data.Klines) == 0 {
		c.logf("[%s] no %s klines for %s..%s", id.SecID(), g, begin.Format(dateParam), end.Format(dateParam))
		return nil, ErrNoData
	}

	bars := make([]model.Bar, 0, len(data.Klines))
	for _, row := range data.Klines {
		b, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", id.SecID(), g, err)
		}
		bars = append(bars, b)
	}
	c.logf("[%s] fetched %d %s klines (%s..%s)", id.SecID(), len(bars), g, begin.Format(dateParam), end.Format(dateParam))
	return bars, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
