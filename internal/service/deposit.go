package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/depositrelay/internal/domain/deposit"
	"github.com/Strob0t/depositrelay/internal/port/cache"
)

// Upstream is the payment provider's deposit API.
type Upstream interface {
	CreateDeposit(ctx context.Context, body []byte) ([]byte, error)
	DepositStatus(ctx context.Context, body []byte) ([]byte, error)
}

// DepositService validates and forwards deposit requests to the provider.
// Status responses are cached briefly and dropped when a webhook reports a
// change for the deposit.
type DepositService struct {
	upstream Upstream
	cache    cache.Cache
	ttl      time.Duration
}

// NewDepositService creates a DepositService. A nil cache or zero ttl
// disables status caching.
func NewDepositService(upstream Upstream, c cache.Cache, ttl time.Duration) *DepositService {
	return &DepositService{upstream: upstream, cache: c, ttl: ttl}
}

// Create requires orderId and amount and returns the provider's JSON verbatim.
func (s *DepositService) Create(ctx context.Context, body []byte) ([]byte, error) {
	if _, err := deposit.RequireFields(body, deposit.FieldOrderID, deposit.FieldAmount); err != nil {
		return nil, err
	}
	return s.upstream.CreateDeposit(ctx, body)
}

// Status requires depositId and returns the provider's JSON verbatim.
func (s *DepositService) Status(ctx context.Context, body []byte) ([]byte, error) {
	fields, err := deposit.RequireFields(body, deposit.FieldDepositID)
	if err != nil {
		return nil, err
	}
	key := cache.DepositStatusKey(fields[deposit.FieldDepositID])

	if s.caching() {
		if data, ok, err := s.cache.Get(ctx, key); err != nil {
			slog.WarnContext(ctx, "status cache get failed", "error", err)
		} else if ok {
			return data, nil
		}
	}

	data, err := s.upstream.DepositStatus(ctx, body)
	if err != nil {
		return nil, err
	}

	if s.caching() {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.WarnContext(ctx, "status cache set failed", "error", err)
		}
	}
	return data, nil
}

// Invalidate drops any cached status for depositID.
func (s *DepositService) Invalidate(ctx context.Context, depositID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.DepositStatusKey(depositID)); err != nil {
		slog.WarnContext(ctx, "status cache invalidate failed", "deposit_id", depositID, "error", err)
	}
}

func (s *DepositService) caching() bool {
	return s.cache != nil && s.ttl > 0
}
