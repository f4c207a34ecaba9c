// Package provider provides an HTTP client for the payment provider's deposit API.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"

	"github.com/Strob0t/depositrelay/internal/adapter/otel"
	"github.com/Strob0t/depositrelay/internal/config"
	"github.com/Strob0t/depositrelay/internal/domain"
	"github.com/Strob0t/depositrelay/internal/resilience"
)

const headerAPIKey = "ApiKey"

// maxResponseBytes caps upstream bodies read into memory.
const maxResponseBytes = 1 << 20

// StatusError is an upstream response with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider API error %d: %s", e.Code, e.Body)
}

// Unwrap makes every StatusError match domain.ErrUpstream.
func (e *StatusError) Unwrap() error { return domain.ErrUpstream }

// Client talks to the provider's deposit endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	createPath string
	statusPath string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a provider client from config.
func NewClient(cfg config.Provider) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		createPath: cfg.CreatePath,
		statusPath: cfg.StatusPath,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// CreateDeposit forwards a create request and returns the upstream JSON.
func (c *Client) CreateDeposit(ctx context.Context, body []byte) ([]byte, error) {
	ctx, span := otel.StartUpstreamSpan(ctx, "create")
	defer span.End()

	resp, err := c.doRequest(ctx, c.createPath, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create deposit: %w", err)
	}
	return resp, nil
}

// DepositStatus forwards a status request and returns the upstream JSON.
func (c *Client) DepositStatus(ctx context.Context, body []byte) ([]byte, error) {
	ctx, span := otel.StartUpstreamSpan(ctx, "status")
	defer span.End()

	resp, err := c.doRequest(ctx, c.statusPath, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("deposit status: %w", err)
	}
	return resp, nil
}

// doRequest POSTs body to path. Transport errors and 5xx responses count
// against the breaker; 4xx responses are the caller's fault and do not.
func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var (
		result []byte
		code   int
	)
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(headerAPIKey, c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("%w: read response: %w", domain.ErrUpstream, err)
		}

		code, result = resp.StatusCode, data
		if code >= http.StatusInternalServerError {
			return &StatusError{Code: code, Body: string(data)}
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	if err != nil {
		return nil, err
	}

	if code >= http.StatusBadRequest {
		return nil, &StatusError{Code: code, Body: string(result)}
	}
	return result, nil
}
