package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/changefeed"
	"github.com/dshills/lorekeeper/pkg/types"
)

// DefaultChannelPrefix prefixes the NOTIFY channel of every collection
const DefaultChannelPrefix = "lorekeeper"

// maxNotifyPayload is the Postgres NOTIFY payload limit
const maxNotifyPayload = 8000

// Feed is a changefeed.Feed over Postgres LISTEN/NOTIFY. Every subscription
// holds a dedicated pool connection.
type Feed struct {
	pool   *pgxpool.Pool
	prefix string
	log    zerolog.Logger
}

var _ changefeed.Feed = (*Feed)(nil)

// NewFeed creates a LISTEN/NOTIFY feed over pool
func NewFeed(pool *pgxpool.Pool, prefix string, log zerolog.Logger) *Feed {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Feed{
		pool:   pool,
		prefix: prefix,
		log:    log.With().Str("component", "changefeed.postgres").Logger(),
	}
}

// Channel returns the NOTIFY channel for entity
func (f *Feed) Channel(entity types.EntityType) string {
	return f.prefix + "_" + string(entity)
}

// Publish sends evt with pg_notify
func (f *Feed) Publish(ctx context.Context, evt types.ChangeEvent) error {
	raw, err := types.EncodeChangeEvent(evt)
	if err != nil {
		return err
	}
	if len(raw) > maxNotifyPayload {
		// Listeners pick the row up from the poll backstop instead
		return fmt.Errorf("change event %s exceeds notify payload limit", evt.EntityID)
	}
	_, err = f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", f.Channel(evt.EntityType), string(raw))
	return err
}

// Subscribe issues LISTEN on a dedicated connection and forwards notifications
func (f *Feed) Subscribe(ctx context.Context, entity types.EntityType, filter changefeed.Filter) (changefeed.Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	channel := f.Channel(entity)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	// The listening connection never returns to the pool
	raw := conn.Hijack()
	listenCtx, cancel := context.WithCancel(context.Background())
	stream := changefeed.NewStream(entity, filter, changefeed.DefaultBuffer, cancel)

	go f.forward(listenCtx, raw, stream)
	return stream, nil
}

// forward waits for notifications until the stream closes or the connection fails
func (f *Feed) forward(ctx context.Context, conn *pgx.Conn, stream *changefeed.Stream) {
	defer func() { _ = conn.Close(context.Background()) }()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				stream.Fail(fmt.Errorf("%w: %v", changefeed.ErrDisconnected, err))
			}
			return
		}

		evt, err := types.DecodeChangeEvent([]byte(n.Payload))
		if err != nil && evt.EntityType != stream.Entity {
			f.log.Warn().Err(err).Str("channel", n.Channel).Msg("bad change event payload")
			changefeed.RecordUndecodable("postgres")
			continue
		}
		if !stream.Wants(evt) {
			continue
		}
		stream.Offer(evt)
	}
}

// Close is a no-op; the pool is owned by the caller
func (f *Feed) Close() error {
	return nil
}
