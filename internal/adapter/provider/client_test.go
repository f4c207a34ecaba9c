package provider_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/depositrelay/internal/adapter/provider"
	"github.com/Strob0t/depositrelay/internal/config"
	"github.com/Strob0t/depositrelay/internal/domain"
	"github.com/Strob0t/depositrelay/internal/resilience"
)

func newClient(url string) *provider.Client {
	return provider.NewClient(config.Provider{
		BaseURL:    url + "/",
		APIKey:     "test-key",
		CreatePath: "/deposit/create",
		StatusPath: "/deposit/status",
		Timeout:    2 * time.Second,
	})
}

func TestCreateDeposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deposit/create" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("ApiKey"); got != "test-key" {
			t.Errorf("unexpected api key: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"orderId":"o-1","amount":10}` {
			t.Errorf("body not forwarded verbatim: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dep123","status":"Pending"}`))
	}))
	defer srv.Close()

	resp, err := newClient(srv.URL).CreateDeposit(context.Background(), []byte(`{"orderId":"o-1","amount":10}`))
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	if string(resp) != `{"id":"dep123","status":"Pending"}` {
		t.Fatalf("unexpected response: %s", resp)
	}
}

func TestDepositStatusPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deposit/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"Success"}`))
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL).DepositStatus(context.Background(), []byte(`{"depositId":"dep123"}`)); err != nil {
		t.Fatalf("DepositStatus failed: %v", err)
	}
}

func TestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"client error", http.StatusUnprocessableEntity},
		{"server error", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).CreateDeposit(context.Background(), []byte(`{}`))
			if !errors.Is(err, domain.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			var se *provider.StatusError
			if !errors.As(err, &se) || se.Code != tt.code {
				t.Fatalf("expected StatusError %d, got %v", tt.code, err)
			}
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url).DepositStatus(context.Background(), []byte(`{}`))
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestBreakerTripsOnServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	var code atomic.Int32
	code.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	c.SetBreaker(resilience.NewBreaker("provider-test", 2, time.Minute))
	ctx := context.Background()

	// 4xx responses never open the circuit.
	for range 3 {
		_, _ = c.CreateDeposit(ctx, []byte(`{}`))
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}

	code.Store(http.StatusInternalServerError)
	for range 2 {
		_, _ = c.CreateDeposit(ctx, []byte(`{}`))
	}

	_, err := c.CreateDeposit(ctx, []byte(`{}`))
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected open circuit wrapped as ErrUpstream, got %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("expected no upstream call while open, got %d calls", got)
	}
}
