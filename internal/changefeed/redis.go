package changefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/pkg/types"
)

// DefaultRedisChannel is the channel prefix used when none is configured
const DefaultRedisChannel = "lorekeeper"

// RedisFeed is a Feed over Redis pub/sub with one channel per collection
type RedisFeed struct {
	rdb    *goredis.Client
	prefix string
	buffer int
	log    zerolog.Logger
}

// NewRedisFeed connects to addr and verifies the connection
func NewRedisFeed(ctx context.Context, addr, prefix string, log zerolog.Logger) (*RedisFeed, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisFeedFromClient(rdb, prefix, log), nil
}

// NewRedisFeedFromClient wraps an existing client
func NewRedisFeedFromClient(rdb *goredis.Client, prefix string, log zerolog.Logger) *RedisFeed {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisChannel
	}
	return &RedisFeed{
		rdb:    rdb,
		prefix: prefix,
		buffer: DefaultBuffer,
		log:    log.With().Str("component", "changefeed.redis").Logger(),
	}
}

// Channel returns the Redis channel carrying entity events
func (f *RedisFeed) Channel(entity types.EntityType) string {
	return f.prefix + ":" + string(entity)
}

// Publish encodes evt and publishes it on the collection channel
func (f *RedisFeed) Publish(ctx context.Context, evt types.ChangeEvent) error {
	if f == nil || f.rdb == nil {
		return fmt.Errorf("redis change feed not initialized")
	}
	raw, err := types.EncodeChangeEvent(evt)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.Channel(evt.EntityType), raw).Err()
}

// Subscribe subscribes to the collection channel. The subscription is
// confirmed with the server before returning.
func (f *RedisFeed) Subscribe(ctx context.Context, entity types.EntityType, filter Filter) (Subscription, error) {
	if f == nil || f.rdb == nil {
		return nil, fmt.Errorf("redis change feed not initialized")
	}

	ps := f.rdb.Subscribe(ctx, f.Channel(entity))

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	stream := NewStream(entity, filter, f.buffer, func() { _ = ps.Close() })
	go f.forward(ps.Channel(), stream)
	return stream, nil
}

// forward decodes channel messages onto the stream until either side ends
func (f *RedisFeed) forward(ch <-chan *goredis.Message, stream *Stream) {
	for {
		select {
		case <-stream.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				stream.Fail(ErrDisconnected)
				return
			}
			evt, err := types.DecodeChangeEvent([]byte(m.Payload))
			if err != nil && evt.EntityType != stream.Entity {
				f.log.Warn().Err(err).Str("channel", m.Channel).Msg("bad change event payload")
				RecordUndecodable("redis")
				continue
			}
			if !stream.Wants(evt) {
				continue
			}
			stream.Offer(evt)
		}
	}
}

// Close closes the Redis client
func (f *RedisFeed) Close() error {
	if f == nil || f.rdb == nil {
		return nil
	}
	return f.rdb.Close()
}
