package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix = "auth:revoked:"
	subjectKeyPrefix = "auth:revoked:sub:"
)

// TokenBlacklist implements domain.TokenBlacklist on redis. Entries carry a
// TTL matching the remaining validity of the token they revoke, so the set
// never outgrows the live token population.
type TokenBlacklist struct {
	client *redis.Client
	exec   *resilience.Executor
	now    func() time.Time
}

func NewTokenBlacklist(client *redis.Client, exec *resilience.Executor) *TokenBlacklist {
	return &TokenBlacklist{client: client, exec: exec, now: time.Now}
}

func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// The token is already past its expiry; nothing to revoke.
		return nil
	}
	return b.exec.Execute(ctx, func(ctx context.Context) error {
		err := b.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
		if err != nil {
			return resilience.MarkTransient(fmt.Errorf("revoke token: %w", err))
		}
		return nil
	})
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return resilience.Do(ctx, b.exec, func(ctx context.Context) (bool, error) {
		n, err := b.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
		if err != nil {
			return false, resilience.MarkTransient(fmt.Errorf("check token revocation: %w", err))
		}
		return n > 0, nil
	})
}

func (b *TokenBlacklist) RevokeSubject(ctx context.Context, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stamp := strconv.FormatInt(b.now().Unix(), 10)
	return b.exec.Execute(ctx, func(ctx context.Context) error {
		err := b.client.Set(ctx, subjectKeyPrefix+subject, stamp, ttl).Err()
		if err != nil {
			return resilience.MarkTransient(fmt.Errorf("revoke subject: %w", err))
		}
		return nil
	})
}

func (b *TokenBlacklist) SubjectRevokedAt(ctx context.Context, subject string) (time.Time, bool, error) {
	type revocation struct {
		at time.Time
		ok bool
	}
	rev, err := resilience.Do(ctx, b.exec, func(ctx context.Context) (revocation, error) {
		val, err := b.client.Get(ctx, subjectKeyPrefix+subject).Result()
		if err == redis.Nil {
			return revocation{}, nil
		}
		if err != nil {
			return revocation{}, resilience.MarkTransient(fmt.Errorf("read subject revocation: %w", err))
		}
		unix, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return revocation{}, fmt.Errorf("parse subject revocation stamp: %w", err)
		}
		return revocation{at: time.Unix(unix, 0), ok: true}, nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return rev.at, rev.ok, nil
}

// Ping reports cache reachability through the circuit breaker.
func (b *TokenBlacklist) Ping(ctx context.Context) error {
	return b.exec.Execute(ctx, func(ctx context.Context) error {
		if err := b.client.Ping(ctx).Err(); err != nil {
			return resilience.MarkTransient(err)
		}
		return nil
	})
}
