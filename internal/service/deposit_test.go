package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/depositrelay/internal/domain"
	"github.com/Strob0t/depositrelay/internal/port/cache"
)

type fakeUpstream struct {
	mu          sync.Mutex
	statusCalls int
	createCalls int
	resp        []byte
	err         error
}

func (u *fakeUpstream) CreateDeposit(_ context.Context, _ []byte) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.createCalls++
	return u.resp, u.err
}

func (u *fakeUpstream) DepositStatus(_ context.Context, _ []byte) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statusCalls++
	return u.resp, u.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestDepositService_CreateValidation(t *testing.T) {
	up := &fakeUpstream{resp: []byte(`{"id":"dep123"}`)}
	svc := NewDepositService(up, nil, 0)
	ctx := context.Background()

	if _, err := svc.Create(ctx, []byte(`{"orderId":"o-1"}`)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if up.createCalls != 0 {
		t.Fatal("invalid request must not reach the provider")
	}

	resp, err := svc.Create(ctx, []byte(`{"orderId":"o-1","amount":5}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if string(resp) != `{"id":"dep123"}` {
		t.Fatalf("resp = %s", resp)
	}
}

func TestDepositService_StatusCaching(t *testing.T) {
	up := &fakeUpstream{resp: []byte(`{"status":"Pending"}`)}
	c := newMapCache()
	svc := NewDepositService(up, c, time.Minute)
	ctx := context.Background()
	body := []byte(`{"depositId":"dep123"}`)

	for range 3 {
		if _, err := svc.Status(ctx, body); err != nil {
			t.Fatalf("Status: %v", err)
		}
	}
	if up.statusCalls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", up.statusCalls)
	}
	if _, ok := c.data[cache.DepositStatusKey("dep123")]; !ok {
		t.Fatal("expected cached status entry")
	}

	svc.Invalidate(ctx, "dep123")
	if _, err := svc.Status(ctx, body); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if up.statusCalls != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", up.statusCalls)
	}
}

func TestDepositService_StatusErrorsNotCached(t *testing.T) {
	up := &fakeUpstream{err: domain.ErrUpstream}
	c := newMapCache()
	svc := NewDepositService(up, c, time.Minute)

	if _, err := svc.Status(context.Background(), []byte(`{"depositId":"dep123"}`)); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if len(c.data) != 0 {
		t.Fatal("failed lookups must not be cached")
	}
}

func TestDepositService_StatusValidation(t *testing.T) {
	svc := NewDepositService(&fakeUpstream{}, nil, 0)
	if _, err := svc.Status(context.Background(), []byte(`{}`)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	// Invalidate without a cache is a no-op.
	svc.Invalidate(context.Background(), "dep123")
}
