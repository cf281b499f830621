package sis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/Project-CARPI/sis-scraper/internal/metrics"
	"github.com/Project-CARPI/sis-scraper/pkg/circuitbreaker"
	harvesterrors "github.com/Project-CARPI/sis-scraper/pkg/errors"
)

// DefaultTimeout is the per-request total timeout (spec.md §4.1).
const DefaultTimeout = 30 * time.Second

// Fetcher issues GETs against one SIS session, applying retry/backoff,
// a circuit breaker, a per-host connection cap, and recursive HTML-entity
// unescaping of every decoded response.
//
// One Fetcher backs exactly one Session (§5: no session may be shared
// across concurrent subject workers), so its cookie jar carries the
// reset_search -> class_search state for a single subject's lifetime.
type Fetcher struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retry   *harvesterrors.RetryPolicy
	perHost chan struct{}
	log     zerolog.Logger
}

// NewFetcher creates a fresh session-scoped fetcher. perHostCap bounds how
// many concurrent in-flight requests this one fetcher may issue (spec.md §5
// "per-host connection cap... applied by the HTTP client's connection
// pool"). subject labels the circuit breaker trip counter, since one
// fetcher backs exactly one subject's session.
func NewFetcher(baseURL string, timeout time.Duration, perHostCap int, subject string, log zerolog.Logger) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if perHostCap <= 0 {
		perHostCap = 5
	}
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Jar: jar},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			OnStateChange: func(from, to circuitbreaker.State) {
				if to == circuitbreaker.StateOpen {
					metrics.CircuitBreakerTrips.WithLabelValues(subject).Inc()
				}
			},
		}),
		retry:   harvesterrors.DefaultRetryPolicy(),
		perHost: make(chan struct{}, perHostCap),
		log:     log,
	}, nil
}

// Get issues a single GET against baseURL+path with the given query
// parameters, retrying transient failures per the fetcher's retry policy,
// all behind the circuit breaker.
func (f *Fetcher) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := f.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var body []byte
	attempt := 0
	breakerErr := f.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return harvesterrors.RetryWithPolicy(ctx, f.retry, func() error {
			if attempt > 0 {
				metrics.FetchRetriesTotal.WithLabelValues(path).Inc()
			}
			attempt++

			f.perHost <- struct{}{}
			defer func() { <-f.perHost }()

			start := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
			if err != nil {
				metrics.FetchAttemptsTotal.WithLabelValues(path, "config_error").Inc()
				return harvesterrors.New(harvesterrors.ErrorTypeConfig, err.Error())
			}

			resp, err := f.client.Do(req)
			if err != nil {
				metrics.FetchAttemptsTotal.WithLabelValues(path, "transient_error").Inc()
				return harvesterrors.Wrap(err, harvesterrors.ErrorTypeTransient, "request failed")
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				metrics.FetchAttemptsTotal.WithLabelValues(path, "transient_error").Inc()
				return harvesterrors.Wrap(err, harvesterrors.ErrorTypeTransient, "reading response body failed")
			}
			metrics.FetchDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())

			switch {
			case resp.StatusCode >= 500:
				metrics.FetchAttemptsTotal.WithLabelValues(path, "server_error").Inc()
				return harvesterrors.NewTransientError(fmt.Sprintf("server error %d from %s", resp.StatusCode, path))
			case resp.StatusCode >= 400:
				metrics.FetchAttemptsTotal.WithLabelValues(path, "client_error").Inc()
				return harvesterrors.New(harvesterrors.ErrorTypeParse, fmt.Sprintf("client error %d from %s", resp.StatusCode, path))
			}

			metrics.FetchAttemptsTotal.WithLabelValues(path, "success").Inc()
			body = data
			return nil
		})
	})
	if breakerErr != nil {
		return nil, breakerErr
	}
	return body, nil
}

// GetJSON issues a GET, decodes the body as JSON into a generic tree,
// recursively HTML-unescapes every string leaf, then re-marshals into
// target. Mirrors original_source/sis_scraper/sis_api.py's
// `data = json.loads(raw); data = html_unescape(data)` two-step.
func (f *Fetcher) GetJSON(ctx context.Context, path string, params url.Values, target any) error {
	raw, err := f.Get(ctx, path, params)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "invalid JSON response from "+path)
	}
	generic = UnescapeHTML(generic)
	reencoded, err := json.Marshal(generic)
	if err != nil {
		return harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "re-encoding unescaped JSON failed")
	}
	if err := json.Unmarshal(reencoded, target); err != nil {
		return harvesterrors.Wrap(err, harvesterrors.ErrorTypeParse, "unexpected JSON shape from "+path)
	}
	return nil
}

// GetHTML issues a GET and returns the body as an HTML-unescaped string.
func (f *Fetcher) GetHTML(ctx context.Context, path string, params url.Values) (string, error) {
	raw, err := f.Get(ctx, path, params)
	if err != nil {
		return "", err
	}
	return UnescapeString(string(raw)), nil
}
