// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package upstream is the gateway's single network boundary.
//
// Every component that talks to the origin (strategies, navigation
// handling, install-time precache, sync replay) goes through Client, so
// the circuit breaker observes the full failure picture of the backend.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/config"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
)

// maxBodyBytes caps a buffered upstream body. Responses beyond the cap
// fail the fetch rather than exhausting memory.
const maxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned when an upstream body exceeds maxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream body exceeds buffer limit")

// Response is a fully buffered upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the response status is a 2xx success.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Entry converts the response into a cache snapshot for a request key.
func (r *Response) Entry(key string) *cachestore.Entry {
	return &cachestore.Entry{
		Key:      key,
		Status:   r.Status,
		Header:   r.Header,
		Body:     r.Body,
		StoredAt: time.Now().UTC(),
	}
}

// Client fetches from the configured origin through a circuit breaker.
//
// The breaker opens on transport-level failures only: an HTTP error
// status is a live backend speaking, not an outage, and strategies make
// their own decisions about non-2xx responses.
type Client struct {
	httpClient *http.Client
	origin     *url.URL
	allowed    map[string]struct{}
	cb         *gobreaker.CircuitBreaker[*Response]
}

// New creates a Client for the configured origin.
func New(cfg *config.UpstreamConfig) (*Client, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	// The origin itself is always reachable through the gateway.
	allowed[strings.ToLower(origin.Hostname())] = struct{}{}

	cbName := "upstream-origin"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	b := cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			trip := ratio >= b.FailureRatio
			if trip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("opening upstream circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("upstream circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		origin:     origin,
		allowed:    allowed,
		cb:         cb,
	}, nil
}

// Allowed reports whether a request host is on the intercept allow-list.
// An empty host means a relative request to the gateway itself.
func (c *Client) Allowed(host string) bool {
	if host == "" {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	_, ok := c.allowed[strings.ToLower(host)]
	return ok
}

// BreakerState reports the circuit breaker state as a label string.
func (c *Client) BreakerState() string {
	return stateToString(c.cb.State())
}

// Resolve maps a gateway-relative path (plus query) onto the origin.
func (c *Client) Resolve(pathAndQuery string) string {
	ref, err := url.Parse(pathAndQuery)
	if err != nil {
		return c.origin.String()
	}
	return c.origin.ResolveReference(ref).String()
}

// Fetch performs one breaker-guarded request against the origin and
// buffers the response. Transport failures count against the breaker;
// HTTP error statuses are returned to the caller unjudged.
func (c *Client) Fetch(ctx context.Context, method, target string, header http.Header, body []byte) (*Response, error) {
	start := time.Now()
	resp, err := c.cb.Execute(func() (*Response, error) {
		return c.fetch(ctx, method, target, header, body)
	})
	metrics.RecordUpstreamRequest(method, time.Since(start), err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues("upstream-origin", "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues("upstream-origin", "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues("upstream-origin", "success").Inc()
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, method, target string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(buf) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   buf,
	}, nil
}

// FetchRequest fetches the origin-resolved equivalent of an inbound
// gateway request.
func (c *Client) FetchRequest(ctx context.Context, r *http.Request) (*Response, error) {
	return c.Fetch(ctx, r.Method, c.Resolve(r.URL.RequestURI()), r.Header, nil)
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
