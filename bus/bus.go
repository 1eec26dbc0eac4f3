// Package bus publishes committed ledger activity to Redis Streams so
// embedding applications can project read models or notify downstream
// systems. Delivery is at-least-once; consumers deduplicate on event
// id.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

const (
	defaultStreamPrefix = "summa:events:"
	defaultMaxLen       = 100_000
	defaultBlock        = 5 * time.Second
	defaultClaimMinIdle = time.Minute
)

type Config struct {
	StreamPrefix string
	// MaxLen caps each stream with XADD MAXLEN ~; zero keeps the
	// default, negative disables trimming.
	MaxLen int64
}

type Bus struct {
	client redis.UniversalClient
	cfg    Config
	logger *zap.Logger
}

func New(client redis.UniversalClient, cfg Config, logger *zap.Logger) (*Bus, error) {
	if client == nil {
		return nil, errs.New(errs.CodeInvalidArgument, "bus: redis client is required")
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = defaultStreamPrefix
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = defaultMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, cfg: cfg, logger: logger}, nil
}

func (b *Bus) stream(subject string) string {
	return b.cfg.StreamPrefix + subject
}

// Publish appends payload to the subject's stream.
func (b *Bus) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "serialize bus payload", err)
	}
	args := &redis.XAddArgs{
		Stream: b.stream(subject),
		Values: map[string]any{"data": string(data)},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return errs.Wrap(errs.CodeInternal, "publish to stream", err)
	}
	return nil
}

// Handler processes one message. Returning an error leaves the message
// pending for redelivery.
type Handler func(ctx context.Context, id string, data []byte) error

// Subscribe consumes subject in the named group until ctx is done. The
// group is created on first use; messages idle past a minute are
// reclaimed from dead consumers.
func (b *Bus) Subscribe(ctx context.Context, subject, group, consumer string, h Handler) error {
	stream := b.stream(subject)
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.claimStale(ctx, stream, group, consumer, h)

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    64,
			Block:    defaultBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("stream read failed", zap.String("stream", stream), zap.Error(err))
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				b.dispatch(ctx, stream, group, msg, h)
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, stream, group string, msg redis.XMessage, h Handler) {
	raw, _ := msg.Values["data"].(string)
	if err := h(ctx, msg.ID, []byte(raw)); err != nil {
		b.logger.Warn("message handler failed; leaving pending",
			zap.String("stream", stream), zap.String("id", msg.ID), zap.Error(err))
		return
	}
	if err := b.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		b.logger.Warn("ack failed", zap.String("stream", stream), zap.String("id", msg.ID), zap.Error(err))
	}
}

// claimStale takes over messages stuck pending on dead consumers.
func (b *Bus) claimStale(ctx context.Context, stream, group, consumer string, h Handler) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  defaultClaimMinIdle,
		Start:    "0-0",
		Count:    64,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		b.logger.Warn("autoclaim failed", zap.String("stream", stream), zap.Error(err))
		return
	}
	for _, msg := range msgs {
		b.dispatch(ctx, stream, group, msg, h)
	}
}

func (b *Bus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errs.Wrap(errs.CodeInternal, "create consumer group", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return errs.Wrap(errs.CodeInternal, "redis ping", err)
	}
	return nil
}
