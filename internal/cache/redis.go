package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL: flightsTTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetFlights returns nil without error on a cache miss.
func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey(), payload, c.flightsTTL).Err()
}

// AcquireSeatClaim marks a seat as being taken by owner for ttl. The claim
// only narrows races; the allocation unique index decides the winner.
func (c *RedisCache) AcquireSeatClaim(ctx context.Context, flightID int64, seatNumber, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, seatClaimKey(flightID, seatNumber), owner, ttl).Result()
}

// ReleaseSeatClaim drops the claim if owner still holds it.
func (c *RedisCache) ReleaseSeatClaim(ctx context.Context, flightID int64, seatNumber, owner string) error {
	key := seatClaimKey(flightID, seatNumber)
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val != owner {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

func flightsKey() string {
	return "cache:flights"
}

func seatClaimKey(flightID int64, seatNumber string) string {
	return fmt.Sprintf("claim:flight:%d:seat:%s", flightID, strings.ToUpper(seatNumber))
}
