// Package httpfetch implements the shared retrying HTTP client used by
// both the ESI client and the RedisQ poller (spec.md §4.5).
//
// Status classification and the backoff table are grounded in the
// teacher's pkg/evegateway/retry.go DefaultRetryClient, generalized
// into a reusable Fetcher that is rate-limit aware.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"wandererkills/internal/platform/apperr"
	"wandererkills/internal/platform/ratelimit"
)

// Outcome classifies a completed request for the retry policy.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeRetryable
	OutcomeFatal
)

// Options controls a single Fetcher.Get call.
type Options struct {
	// Upstream names the rate-limit bucket to acquire from before
	// sending (e.g. "esi", "zkb"). Empty means no rate limiting.
	Upstream string
	Headers  map[string]string
	// MaxRetries overrides the Fetcher default for this call.
	MaxRetries *int
}

// Fetcher performs GETs with rate-limit integration, retry with
// exponential backoff, and status classification (spec.md §4.5).
type Fetcher struct {
	client      *http.Client
	limiter     *ratelimit.Limiter
	baseBackoff time.Duration
	factor      float64
	maxBackoff  time.Duration
	maxRetries  int
}

// New creates a Fetcher with the spec.md §4.5 defaults
// (base=1s, factor=2, max=30s, default max retries 3).
func New(client *http.Client, limiter *ratelimit.Limiter) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client:      client,
		limiter:     limiter,
		baseBackoff: 1 * time.Second,
		factor:      2,
		maxBackoff:  30 * time.Second,
		maxRetries:  3,
	}
}

// Get issues a GET request, retrying retryable failures with
// exponential backoff, and returns the response body on success.
func (f *Fetcher) Get(ctx context.Context, url string, opts Options) ([]byte, error) {
	maxRetries := f.maxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	backoff := f.baseBackoff
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if opts.Upstream != "" && f.limiter != nil {
			if err := f.limiter.Acquire(ctx, opts.Upstream); err != nil {
				return nil, apperr.Wrap(apperr.KindHTTP, apperr.CodeTimeout, "rate limiter wait cancelled", err)
			}
		}

		body, outcome, err := f.doOnce(ctx, url, opts)
		switch outcome {
		case OutcomeOK:
			return body, nil
		case OutcomeNotFound:
			return nil, apperr.New(apperr.KindCache, apperr.CodeNotFound, "resource not found")
		case OutcomeFatal:
			return nil, err
		case OutcomeRetryable:
			lastErr = err
			if attempt == maxRetries {
				return nil, apperr.Wrap(apperr.KindHTTP, apperr.CodeHTTPStatus, "exhausted retries", err)
			}
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, f.factor, f.maxBackoff)
			continue
		}
	}

	return nil, lastErr
}

func (f *Fetcher) doOnce(ctx context.Context, url string, opts Options) ([]byte, Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, OutcomeFatal, apperr.Wrap(apperr.KindHTTP, apperr.CodeConnectionFailed, "failed to build request", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeoutOrReset(err) {
			return nil, OutcomeRetryable, apperr.Wrap(apperr.KindHTTP, apperr.CodeTimeout, "request failed", err)
		}
		return nil, OutcomeRetryable, apperr.Wrap(apperr.KindHTTP, apperr.CodeConnectionFailed, "request failed", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, OutcomeRetryable, apperr.Wrap(apperr.KindHTTP, apperr.CodeConnectionFailed, "failed to read body", readErr)
	}

	return classify(resp.StatusCode, body)
}

// classify implements spec.md §4.5's status classification: 2xx ok,
// 404 not_found, 429/5xx/408 retryable, other 4xx fatal.
func classify(status int, body []byte) ([]byte, Outcome, error) {
	switch {
	case status >= 200 && status < 300:
		return body, OutcomeOK, nil
	case status == http.StatusNotFound:
		return nil, OutcomeNotFound, nil
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return nil, OutcomeRetryable, apperr.New(apperr.KindHTTP, apperr.CodeHTTPStatus, fmt.Sprintf("http status %d", status))
	default:
		return nil, OutcomeFatal, apperr.New(apperr.KindHTTP, apperr.CodeHTTPStatus, fmt.Sprintf("http status %d", status))
	}
}

func isTimeoutOrReset(err error) bool {
	var netErr net.Error
	if ok := assignNetError(err, &netErr); ok && netErr.Timeout() {
		return true
	}
	return false
}

func assignNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
