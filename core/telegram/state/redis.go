package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/qnabot/core/logger"
)

// RedisOptions tune RedisStore.
type RedisOptions struct {
	// Prefix is prepended to every key, e.g. "qnabot:".
	Prefix string
	// TTL expires idle dialogs; zero keeps them until they end.
	TTL time.Duration
}

// RedisStore keeps states in Redis under <prefix><user>. Set returns
// after Redis acknowledged the write.
type RedisStore struct {
	client redis.UniversalClient
	codec  *Codec
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a Store on top of client. codec must know every state
// kind the registry can produce.
func NewRedisStore(client redis.UniversalClient, codec *Codec, opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: client,
		codec:  codec,
		prefix: opts.Prefix + "state:",
		ttl:    opts.TTL,
	}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the state of userID. A missing key is Empty. A value whose kind
// is no longer registered is treated as Empty and logged, so a stale entry
// cannot wedge the user's dialog.
func (s *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get state: %w", err)
	}
	st, err := s.codec.Unmarshal(raw)
	if err != nil {
		logger.LogEvent(ctx, logger.RDS, slog.LevelWarn, "state.decode",
			slog.String("status", "skip"),
			slog.Int64("user_id", userID),
			slog.Any("err", err),
		)
		return Empty{}, nil
	}
	return st, nil
}

// Set stores st for userID. Empty deletes the key.
func (s *RedisStore) Set(ctx context.Context, userID int64, st State) error {
	if IsEmpty(st) {
		if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
			return fmt.Errorf("redis delete state: %w", err)
		}
		return nil
	}
	raw, err := s.codec.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
