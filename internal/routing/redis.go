// Package routing stores the "outbound-routing hint" spec.md §3 lists as
// a ChargePoint attribute: which process currently owns a station's live
// Session. A single-instance deployment has no need for it (the
// in-process Registry is authoritative); this package exists for a
// horizontally-scaled deployment where an admin service on a different
// pod needs to know which pod to route a command to. Adapted from the
// teacher's internal/storage/{interface.go,redis_storage.go}, renamed to
// this domain's vocabulary (RoutingStore / pod id). NewRedisRoutingStore
// pings Redis once at construction; RoutingStore has no Ping method.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RoutingStore maps a station id to the pod id currently holding its
// live Session, with a TTL so a crashed pod's entries expire instead of
// routing to a dead process forever.
type RoutingStore interface {
	SetOwner(ctx context.Context, stationID, podID string, ttl time.Duration) error
	GetOwner(ctx context.Context, stationID string) (string, bool, error)
	DeleteOwner(ctx context.Context, stationID string) error
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisRoutingStore is the RoutingStore backed by go-redis/v8, grounded
// on the teacher's RedisStorage.
type RedisRoutingStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisRoutingStore(cfg Config) (*RedisRoutingStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisRoutingStore{Client: client, Prefix: "route:"}, nil
}

func (r *RedisRoutingStore) key(stationID string) string {
	return r.Prefix + stationID
}

func (r *RedisRoutingStore) SetOwner(ctx context.Context, stationID, podID string, ttl time.Duration) error {
	return r.Client.Set(ctx, r.key(stationID), podID, ttl).Err()
}

func (r *RedisRoutingStore) GetOwner(ctx context.Context, stationID string) (string, bool, error) {
	val, err := r.Client.Get(ctx, r.key(stationID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisRoutingStore) DeleteOwner(ctx context.Context, stationID string) error {
	return r.Client.Del(ctx, r.key(stationID)).Err()
}

func (r *RedisRoutingStore) Close() error {
	return r.Client.Close()
}

var _ RoutingStore = (*RedisRoutingStore)(nil)
