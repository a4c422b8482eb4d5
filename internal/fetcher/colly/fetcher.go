// Package collyfetcher implements enrich.Fetcher and enrich.Prober using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/clock/system"
	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
)

// Browser-like defaults; some shops return empty shells to unknown agents.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	RespectRobots  bool
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxBodyBytes   int
}

// Waiter is the politeness gate consulted before every attempt.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements enrich.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       Waiter
	retry         *RetryPolicy
	clock         enrich.Clock
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// statusError carries the HTTP status of a failed response so the retry
// policy can tell throttling and server errors from permanent failures.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %v", e.code, e.err) }
func (e *statusError) Unwrap() error { return e.err }

// New builds a Fetcher. A nil limiter disables politeness spacing.
func New(cfg Config, limiter Waiter, clock enrich.Clock, logger *zap.Logger) *Fetcher {
	cfg = applyDefaults(cfg)
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	// Retries revisit the same URL; colly would otherwise refuse them.
	c.AllowURLRevisit = true
	c.MaxBodySize = cfg.MaxBodyBytes

	// Clones share the base collector's HTTP backend, so transport and timeout
	// are set once here rather than per request.
	transport := newHTTPTransport()
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       limiter,
		retry:         NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffInitial, cfg.BackoffMax),
		clock:         clock,
		logger:        logger,
	}
}

func applyDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	return cfg
}

// Fetch retrieves the URL, retrying transient failures. Once attempts are
// exhausted it returns an *enrich.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request enrich.FetchRequest) (enrich.FetchResponse, error) {
	if request.Method == "" {
		request.Method = http.MethodGet
	}
	start := time.Now()

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempts < f.retry.MaxAttempts() {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, request.URL); err != nil {
				return enrich.FetchResponse{}, &enrich.FetchError{URL: request.URL, Attempts: attempts, Err: err}
			}
		}
		attempts++

		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			metrics.ObserveFetch(request.URL, "ok")
			resp.Attempts = attempts
			resp.Duration = time.Since(start)
			return resp, nil
		}

		lastErr = err
		lastStatus = statusOf(err)
		metrics.ObserveFetch(request.URL, resultLabel(lastStatus))

		if !f.retry.ShouldRetry(err, attempts) {
			break
		}
		delay := f.retry.Backoff(attempts)
		f.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempts),
			zap.Int("status", lastStatus),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		f.clock.Sleep(ctx, delay)
	}

	return enrich.FetchResponse{}, &enrich.FetchError{
		URL:        request.URL,
		Attempts:   attempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// Probe issues a HEAD request through the same retry and politeness path.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (enrich.ProbeResult, error) {
	resp, err := f.Fetch(ctx, enrich.FetchRequest{URL: rawURL, Method: http.MethodHead})
	if err != nil {
		return enrich.ProbeResult{URL: rawURL, StatusCode: statusOf(err)}, err
	}
	return enrich.ProbeResult{
		URL:           resp.URL,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.ContentType,
		ContentLength: resp.ContentLength,
	}, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, request enrich.FetchRequest) (enrich.FetchResponse, error) {
	var (
		result   enrich.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(ctx, request, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request, &fetchErr); err != nil {
		return enrich.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request enrich.FetchRequest,
	result *enrich.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.Context = ctx

	f.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request enrich.FetchRequest,
	result *enrich.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = enrich.FetchResponse{
			URL:           r.Request.URL.String(),
			StatusCode:    r.StatusCode,
			ContentType:   r.Headers.Get("Content-Type"),
			ContentLength: declaredLength(r),
			Body:          append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		code := 0
		if r != nil {
			code = r.StatusCode
		}
		if code != 0 {
			*fetchErr = &statusError{code: code, err: err}
			return
		}
		*fetchErr = err
	})
}

// declaredLength prefers the Content-Length header, which is all a HEAD
// response carries, and falls back to the body size.
func declaredLength(r *colly.Response) int64 {
	if r.Headers != nil {
		if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if len(r.Body) > 0 {
		return int64(len(r.Body))
	}
	return -1
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	request enrich.FetchRequest,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(request.Method, request.URL, nil, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) applyHeaders(request enrich.FetchRequest, r *colly.Request) {
	r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	if r.Headers.Get("Accept") == "" {
		r.Headers.Set("Accept", defaultAccept)
	}
	for key, value := range request.Headers {
		r.Headers.Set(key, value)
	}
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	var fe *enrich.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func resultLabel(status int) string {
	switch {
	case status == 0:
		return "network_error"
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
