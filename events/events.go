// Package events carries the TokenGranted side channel. Publication is fire
// and forget: the issuing path never blocks on consumers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TokenGranted is published after a granted token is persisted.
type TokenGranted struct {
	TokenID   string    `json:"token_id"`
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject,omitempty"`
	Scope     string    `json:"scope"`
	GrantType string    `json:"grant_type"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	TokenGranted(ctx context.Context, e TokenGranted)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) TokenGranted(context.Context, TokenGranted) {}

// ChannelPublisher delivers on a buffered channel, dropping when the buffer
// is full so issuance is never held up by a slow consumer.
type ChannelPublisher struct {
	ch chan TokenGranted
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelPublisher{ch: make(chan TokenGranted, buffer)}
}

func (p *ChannelPublisher) TokenGranted(_ context.Context, e TokenGranted) {
	select {
	case p.ch <- e:
	default:
		slog.Warn("token granted event dropped", "client_id", e.ClientID)
	}
}

// Events exposes the consumer side of the channel.
func (p *ChannelPublisher) Events() <-chan TokenGranted {
	return p.ch
}

// RedisPublisher publishes to a redis pub/sub channel.
type RedisPublisher struct {
	redis   redis.Cmdable
	channel string
}

func NewRedisPublisher(cmdable redis.Cmdable, channel string) *RedisPublisher {
	if channel == "" {
		channel = "soteria.token_granted"
	}
	return &RedisPublisher{redis: cmdable, channel: channel}
}

func (p *RedisPublisher) TokenGranted(ctx context.Context, e TokenGranted) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("marshal token granted event", "err", err)
		return
	}
	if err := p.redis.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		slog.Warn("publish token granted event", "err", err)
	}
}
