package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBudget is the total time allowed for a fetch, redirects included.
	DefaultBudget = 5 * time.Second

	// hopPenalty is subtracted from the remaining budget for every redirect
	// hop. The budget is never reset, so chain length is implicitly bounded.
	hopPenalty = 1 * time.Second

	// maxBodyBytes caps how much of a response body we keep.
	maxBodyBytes = 200_000

	userAgent    = "AI-Digest/1.0"
	acceptHeader = "text/html,application/xhtml+xml,application/xml,application/json,*/*"
)

// ErrTimeout is returned when the fetch budget is exhausted before the
// response completes.
var ErrTimeout = errors.New("fetch timeout")

// Result holds the declared content type and the (possibly truncated) body.
type Result struct {
	ContentType string
	Body        []byte
}

type Client struct {
	http   *http.Client
	budget time.Duration
}

func NewClient() *Client {
	return NewClientWithBudget(DefaultBudget)
}

func NewClientWithBudget(budget time.Duration) *Client {
	return &Client{
		http: &http.Client{
			// Redirects are walked manually so each hop can decrement
			// the remaining budget.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		budget: budget,
	}
}

// Fetch issues a GET against rawURL, following redirects while the budget
// lasts. The body is truncated at maxBodyBytes.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	fetchAttempts.Inc()
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	remaining := c.budget
	target := rawURL

	for {
		if remaining <= 0 {
			fetchErrors.WithLabelValues("timeout").Inc()
			return nil, ErrTimeout
		}

		result, redirect, err := c.fetchOnce(ctx, target, remaining)
		if err != nil {
			fetchErrors.WithLabelValues(errorReason(err)).Inc()
			return nil, err
		}
		if redirect != "" {
			fetchRedirects.Inc()
			log.WithFields(log.Fields{
				"from":      target,
				"to":        redirect,
				"remaining": remaining - hopPenalty,
			}).Debug("Following redirect")
			remaining -= hopPenalty
			target = redirect
			continue
		}
		return result, nil
	}
}

func (c *Client) fetchOnce(ctx context.Context, target string, budget time.Duration) (*Result, string, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			return nil, resolveRedirect(req.URL, loc), nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", classifyError(err)
	}

	return &Result{
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, "", nil
}

func resolveRedirect(base *url.URL, location string) string {
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("request failed: %w", err)
}
