package appnotify

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// debugChannel is the channel operator tooling can subscribe to for a
// CBOR-encoded dump of the session's current state.
const debugChannel = "bump-bridge:debug"

// RedisSink bridges the session engine to a Redis instance: outbound
// notify chunks are published on notifyChannel, inbound app-write
// chunks are popped off recvKey with BRPOP. Chunks cross the wire
// hex-encoded since they are arbitrary binary and Redis pub/sub and
// list values are strings.
type RedisSink struct {
	client        *redis.Client
	ctx           context.Context
	cancel        context.CancelFunc
	notifyChannel string
	recvKey       string
}

// NewRedisSink connects to addr and pings it before returning, matching
// how the reference Redis client fails fast on a bad address.
func NewRedisSink(addr, password string, db int, notifyChannel, recvKey string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("appnotify: connect to redis: %w", err)
	}
	return &RedisSink{
		client:        client,
		ctx:           ctx,
		cancel:        cancel,
		notifyChannel: notifyChannel,
		recvKey:       recvKey,
	}, nil
}

func (s *RedisSink) Notify(chunk []byte) error {
	return s.client.Publish(s.ctx, s.notifyChannel, hex.EncodeToString(chunk)).Err()
}

// Recv blocks on BRPOP until a chunk is pushed to recvKey or the sink
// is closed.
func (s *RedisSink) Recv() ([]byte, error) {
	result, err := s.client.BRPop(s.ctx, 0, s.recvKey).Result()
	if err != nil {
		if err == redis.Nil || s.ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("appnotify: brpop %s: %w", s.recvKey, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("appnotify: unexpected brpop result: %v", result)
	}
	return hex.DecodeString(result[1])
}

// PublishDebug publishes a pre-encoded snapshot on the debug channel,
// reusing the same connection the notify/recv paths run over.
func (s *RedisSink) PublishDebug(encoded []byte) error {
	return s.client.Publish(s.ctx, debugChannel, encoded).Err()
}

func (s *RedisSink) Close() error {
	s.cancel()
	return s.client.Close()
}
