package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aimodeler/internal/logging"
	"aimodeler/internal/material"
	"aimodeler/internal/plan"
)

// Provenance tells the caller which planner produced a plan. The remote
// client never surfaces its failures as errors; it reports fallback
// through this tag instead, since step richness is all that changes.
type Provenance string

const (
	ProvenanceRemote   Provenance = "remote"
	ProvenanceFallback Provenance = "fallback"
)

// TransportError is a network, timeout or HTTP-status failure on one
// remote attempt.
type TransportError struct {
	Status int // 0 when the request never completed
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("planner service returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("planner request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a malformed response body on one remote attempt.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("planner response unparseable: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RetryConfig bounds the remote request loop.
type RetryConfig struct {
	MaxAttempts       int           // total attempts before fallback
	BaseDelay         time.Duration // first backoff delay
	MaxDelay          time.Duration // backoff cap
	PerAttemptTimeout time.Duration // deadline for each attempt
}

// DefaultRetryConfig returns the stock retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		PerAttemptTimeout: 15 * time.Second,
	}
}

// backoff returns the delay before the given zero-based retry,
// exponential and capped.
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := c.BaseDelay * time.Duration(1<<uint(attempt))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RemotePlanner asks a hosted planning service for a plan and falls
// back to the rule planner when the service cannot deliver one. A
// single sequential request-retry loop; no parallel attempts.
type RemotePlanner struct {
	baseURL    string
	apiKey     string
	retry      RetryConfig
	httpClient *http.Client
	fallback   *RulePlanner
	presets    *material.Registry

	attempts int // attempts made by the most recent Plan call
}

// NewRemotePlanner creates a remote planner client. An empty API key is
// sent as-is; the service's auth rejection then counts as an ordinary
// attempt failure.
func NewRemotePlanner(baseURL, apiKey string, retry RetryConfig, presets *material.Registry) *RemotePlanner {
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryConfig()
	}
	return &RemotePlanner{
		baseURL:    baseURL,
		apiKey:     apiKey,
		retry:      retry,
		httpClient: &http.Client{},
		fallback:   NewRulePlanner(presets),
		presets:    presets,
	}
}

// Attempts reports how many remote attempts the most recent Plan call
// made. Not meaningful while a call is in flight; the surrounding UI
// serializes generate actions.
func (c *RemotePlanner) Attempts() int { return c.attempts }

// Plan requests a plan for prompt. Every attempt failure — connection
// error, timeout, non-2xx status, malformed body, or plan-validation
// failure — counts against the retry budget uniformly. After the budget
// is exhausted the rule planner's result is returned with
// ProvenanceFallback; the caller never sees an error.
func (c *RemotePlanner) Plan(ctx context.Context, prompt, units string) (*plan.Plan, Provenance) {
	c.attempts = 0
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.backoff(attempt - 1)
			logging.RemoteDebug("retrying in %s (attempt %d/%d)", delay, attempt+1, c.retry.MaxAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				logging.RemoteWarn("context cancelled during backoff: %v", ctx.Err())
				return c.fallbackPlan(prompt, units, ctx.Err())
			}
		}

		c.attempts++
		p, err := c.requestPlan(ctx, prompt, units)
		if err == nil {
			logging.RemoteDebug("remote plan %s accepted after %d attempt(s)", p.ID, c.attempts)
			return p, ProvenanceRemote
		}
		lastErr = err
		logging.RemoteWarn("attempt %d/%d failed: %v", attempt+1, c.retry.MaxAttempts, err)
		if ctx.Err() != nil {
			break
		}
	}

	return c.fallbackPlan(prompt, units, lastErr)
}

func (c *RemotePlanner) fallbackPlan(prompt, units string, cause error) (*plan.Plan, Provenance) {
	logging.RemoteWarn("falling back to rule planner after %d attempt(s): %v", c.attempts, cause)
	return c.fallback.Plan(prompt, units), ProvenanceFallback
}

// requestPlan performs one POST {base_url}/plan attempt, bounded by the
// per-attempt timeout, and validates the parsed plan before accepting.
func (c *RemotePlanner) requestPlan(ctx context.Context, prompt, units string) (*plan.Plan, error) {
	attemptCtx := ctx
	if c.retry.PerAttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.retry.PerAttemptTimeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"prompt": prompt, "units": units})
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/plan", bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "aimodeler/0.1")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Status: resp.StatusCode}
	}

	p, err := plan.Parse(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if violations := plan.Validate(p, c.presets); len(violations) > 0 {
		return nil, &ParseError{Err: fmt.Errorf("remote plan invalid: %s", violations[0])}
	}
	return p, nil
}
