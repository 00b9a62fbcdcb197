package httpfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = 1 * time.Second
	DefaultRateLimitRetries  = 10
	DefaultRateLimitMaxDelay = 5 * time.Second

	maxErrorBody = 512
)

// Recorder receives per-request telemetry. *observability.Metrics satisfies it.
type Recorder interface {
	ObserveRequest(host string, status int)
	ObserveRetry(host, reason string)
	ObserveRateLimitExhausted(host string)
}

// RequestOptions controls a single FetchJSON call. Zero values fall back to the
// fetcher defaults; a negative MaxRetries disables transport retries.
type RequestOptions struct {
	Headers map[string]string
	Method  string
	Body    []byte

	MaxRetries        int
	BaseDelay         time.Duration
	RateLimitRetries  int
	RateLimitMaxDelay time.Duration

	ThrottleKey      string
	ThrottleInterval time.Duration

	ErrorLabel string
}

type Fetcher struct {
	client   *http.Client
	limiter  *RateLimiter
	logger   *slog.Logger
	recorder Recorder
	defaults RequestOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

func WithRateLimiter(l *RateLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		f.recorder = r
	}
}

// WithDefaults sets the retry and backoff defaults applied to every request.
// Zero fields keep the package defaults.
func WithDefaults(d RequestOptions) Option {
	return func(f *Fetcher) {
		f.defaults = d
	}
}

func (f *Fetcher) IsValid() error {
	switch {
	case f.client == nil:
		return errors.Wrap(ErrInvalidFetcherConfig, "http client cannot be nil")
	case f.limiter == nil:
		return errors.Wrap(ErrInvalidFetcherConfig, "rate limiter cannot be nil")
	case f.logger == nil:
		return errors.Wrap(ErrInvalidFetcherConfig, "logger cannot be nil")
	default:
		return nil
	}
}

func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: NewRateLimiter(),
		sleep:   sleepContext,
	}

	for _, opt := range opts {
		opt(f)
	}

	if err := f.IsValid(); err != nil {
		return nil, err
	}
	f.logger = f.logger.With("component", "httpfetch")
	return f, nil
}

// Fetch decodes the JSON body of a successful response into a new T.
func Fetch[T any](ctx context.Context, f *Fetcher, rawURL string, opts RequestOptions) (T, error) {
	var out T
	err := f.FetchJSON(ctx, rawURL, opts, &out)
	return out, err
}

// FetchJSON issues the request, retrying transport failures with exponential backoff and
// 429 responses against a separate budget, then decodes the body into out (when non-nil).
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, opts RequestOptions, out any) error {
	opts = f.resolve(opts)
	host := hostOf(rawURL)
	label := opts.ErrorLabel
	if label == "" {
		label = host
	}

	attempt := 0
	rateLimited := 0
	for {
		if err := f.limiter.Wait(ctx, opts.ThrottleKey, opts.ThrottleInterval); err != nil {
			return err
		}

		status, header, body, err := f.do(ctx, rawURL, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= opts.MaxRetries {
				return errors.Wrapf(err, "%s: request failed after %d attempts", label, attempt+1)
			}
			delay := backoff(opts.BaseDelay, attempt, 0)
			attempt++
			f.observeRetry(host, "network")
			f.logger.Warn("request failed, retrying", "label", label, "attempt", attempt, "delay", delay, "error", err)
			if err := f.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if status == http.StatusTooManyRequests {
			if rateLimited >= opts.RateLimitRetries {
				if f.recorder != nil {
					f.recorder.ObserveRateLimitExhausted(host)
				}
				return &RateLimitError{Label: label, Attempts: rateLimited + 1}
			}
			delay, ok := retryAfter(header, time.Now())
			if !ok {
				delay = backoff(opts.BaseDelay, rateLimited, opts.RateLimitMaxDelay)
			}
			rateLimited++
			f.observeRetry(host, "rate_limited")
			f.logger.Debug("rate limited, backing off", "label", label, "attempt", rateLimited, "delay", delay)
			if err := f.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if status < 200 || status >= 300 {
			return &HTTPError{Label: label, Status: status, Body: truncate(string(body), maxErrorBody)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &DecodeError{Label: label, Err: err}
		}
		return nil
	}
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts RequestOptions) (int, http.Header, []byte, error) {
	var reader io.Reader
	if opts.Body != nil {
		reader = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, rawURL, reader)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if f.recorder != nil {
		f.recorder.ObserveRequest(hostOf(rawURL), resp.StatusCode)
	}
	if err != nil {
		return 0, nil, nil, errors.Wrap(err, "read response")
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (f *Fetcher) resolve(opts RequestOptions) RequestOptions {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = firstPositive(f.defaults.MaxRetries, DefaultMaxRetries)
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = firstPositive(f.defaults.BaseDelay, DefaultBaseDelay)
	}
	if opts.RateLimitRetries <= 0 {
		opts.RateLimitRetries = firstPositive(f.defaults.RateLimitRetries, DefaultRateLimitRetries)
	}
	if opts.RateLimitMaxDelay <= 0 {
		opts.RateLimitMaxDelay = firstPositive(f.defaults.RateLimitMaxDelay, DefaultRateLimitMaxDelay)
	}
	return opts
}

func firstPositive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

func (f *Fetcher) observeRetry(host, reason string) {
	if f.recorder != nil {
		f.recorder.ObserveRetry(host, reason)
	}
}

// backoff returns base*2^attempt, capped at ceiling when ceiling > 0.
func backoff(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HostKey is the conventional throttle key for a base URL.
func HostKey(rawURL string) string {
	return hostOf(rawURL)
}
