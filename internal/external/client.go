// Package external wraps the third-party HTTP APIs the relay talks to:
// Comunitive webhooks and API, SCORM Cloud, and Slack. Every call goes
// through BaseClient, which adds a circuit breaker, optional retries on
// 429/5xx, request id propagation, and a uniform transport error type.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"scormrelay/internal/types"
)

// RetryPolicy controls retries on 429 and 5xx responses. MaxRetries of zero
// means a single attempt.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// NoRetry is used for webhook delivery, where the inbound sender retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// DefaultRetryPolicy is used for idempotent configuration calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    300 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker and retry policy.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	breakerName string
	retry       RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)

	// perHost is set for clients whose destinations come from data. Each
	// host then trips independently.
	perHost  bool
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces time.Sleep between retries.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) { c.sleepFn = fn }
}

// WithBreaker shares or replaces the circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// WithPerHostBreakers keeps one breaker per destination host instead of a
// single breaker for the client.
func WithPerHostBreakers() BaseClientOption {
	return func(c *BaseClient) {
		c.perHost = true
		c.breakers = make(map[string]*gobreaker.CircuitBreaker[*http.Response])
	}
}

// NewBreaker returns the breaker settings shared by all clients: trip after
// five consecutive failures, probe again after 30s.
func NewBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

func NewBaseClient(httpClient *http.Client, breakerName string, retry RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	bc := &BaseClient{
		client:      httpClient,
		breaker:     NewBreaker(breakerName),
		breakerName: breakerName,
		retry:       retry,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do sends req and returns the final response whatever its status; the
// caller owns the body and decides what a status means. 5xx and 429 count
// as breaker failures and are retried per the policy.
//
// Transport failures (DNS, dial, TLS, timeout, blocked destination) and an
// open breaker return *NetworkError with no response.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffer request body: %w", err)
		}
	}

	breaker := c.breakerFor(req.URL.Host)
	attempts := 1 + max(c.retry.MaxRetries, 0)
	for attempt := 0; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		switch {
		case err == nil:
			return resp, nil
		case resp == nil:
			// Transport failure or open breaker. Not retried.
			return nil, &NetworkError{URL: req.URL.Redacted(), Err: err}
		case attempt+1 >= attempts:
			return resp, nil
		}

		wait := c.backoff(attempt, resp)
		resp.Body.Close()
		c.sleepFn(wait)
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, &NetworkError{URL: req.URL.Redacted(), Err: ctxErr}
		}
	}
}

func (c *BaseClient) breakerFor(host string) *gobreaker.CircuitBreaker[*http.Response] {
	if !c.perHost {
		return c.breaker
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		cb = NewBreaker(c.breakerName + ":" + host)
		c.breakers[host] = cb
	}
	return cb
}

// backoff honors a Retry-After header in seconds or HTTP-date form, else
// uses jittered exponential backoff clamped to [MinWait, MaxWait].
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	clamp := func(d time.Duration) time.Duration {
		return min(max(d, c.retry.MinWait), c.retry.MaxWait)
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return clamp(time.Duration(secs) * time.Second)
		}
		if at, err := http.ParseTime(ra); err == nil {
			return clamp(time.Until(at))
		}
	}

	ceiling := float64(c.retry.MinWait) * math.Pow(2, float64(attempt))
	ceiling = math.Min(ceiling, float64(c.retry.MaxWait))
	floor := float64(c.retry.MinWait)
	if ceiling <= floor {
		return c.retry.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

// IsBreakerOpen reports whether err came from an open or saturated breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
