// Package presence mirrors the in-process presence directory into Redis so
// other processes can read who is online. Every change is also published
// on a channel for external consumers.
package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Change is published on the channel for every update.
type Change struct {
	Op     string        `json:"op"`
	UserID domain.UserID `json:"user"`
	Name   string        `json:"name,omitempty"`
}

const (
	OpJoin  = "join"
	OpLeave = "leave"
)

// RedisPresence keeps a hash of online users and publishes changes.
// It implements core.PresenceSink.
type RedisPresence struct {
	client  *redis.Client
	key     string
	channel string
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	p := New(client, cfg.PresenceKey, cfg.Channel)
	// Entries left by a previous run of this process are stale.
	if err := client.Del(ctx, p.key).Err(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.presence").Msg("reset presence key")
	}
	log.Info().Str("module", "adapters.presence").Str("addr", cfg.Addr).Str("key", p.key).Msg("redis presence mirror ready")
	return p, nil
}

func New(client *redis.Client, key, channel string) *RedisPresence {
	return &RedisPresence{client: client, key: key, channel: channel}
}

func (p *RedisPresence) SetPresent(ctx context.Context, uid domain.UserID, displayName string) error {
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.key, string(uid), displayName)
	p.publish(ctx, pipe, Change{Op: OpJoin, UserID: uid, Name: displayName})
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) ClearPresent(ctx context.Context, uid domain.UserID) error {
	pipe := p.client.TxPipeline()
	pipe.HDel(ctx, p.key, string(uid))
	p.publish(ctx, pipe, Change{Op: OpLeave, UserID: uid})
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) publish(ctx context.Context, pipe redis.Pipeliner, ch Change) {
	if p.channel == "" {
		return
	}
	b, err := json.Marshal(ch)
	if err != nil {
		return
	}
	pipe.Publish(ctx, p.channel, b)
}

// Snapshot reads the mirrored directory.
func (p *RedisPresence) Snapshot(ctx context.Context) (map[domain.UserID]string, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[domain.UserID]string, len(raw))
	for id, name := range raw {
		out[domain.UserID(id)] = name
	}
	return out, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
