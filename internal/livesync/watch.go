package livesync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/cache"
	"github.com/dshills/lorekeeper/internal/changefeed"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Defaults for Config
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
)

// Config controls the poll backstop and reconnection
type Config struct {
	Poll             bool
	PollInterval     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = DefaultReconnectInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
	if c.ReconnectMax < c.ReconnectInitial {
		c.ReconnectMax = c.ReconnectInitial
	}
	return c
}

// Entity is a row type a watch can merge
type Entity[T any] interface {
	cache.Item[T]
	Version() string
}

// Source labels where a merged row came from
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Stream describes the list a watch keeps current
type Stream[T Entity[T]] struct {
	Key      string
	Entity   types.EntityType
	Filter   changefeed.Filter
	Snapshot func(ctx context.Context) ([]T, error)
	Cache    *cache.Cache[T]
	// Decorate, when set, is applied to every row before it is cached
	Decorate func(T) T
}

// Option configures a watch
type Option func(*hooks)

type hooks struct {
	onApply func(types.ChangeEvent)
}

// WithOnApply runs fn on the merge goroutine after each applied patch
func WithOnApply(fn func(types.ChangeEvent)) Option {
	return func(h *hooks) { h.onApply = fn }
}

// Status is a point-in-time view of a watch
type Status struct {
	Key         string           `json:"key"`
	Entity      types.EntityType `json:"entity"`
	State       State            `json:"state"`
	Tracked     int64            `json:"tracked"`
	Applied     int64            `json:"applied"`
	LastEmitted string           `json:"last_emitted,omitempty"`
}

// Watch merges the change feed and poll snapshots into one cache list
type Watch[T Entity[T]] struct {
	stream Stream[T]
	feed   changefeed.Feed
	cfg    Config
	log    zerolog.Logger
	hooks  hooks

	// Owned by the merge goroutine: id -> version of live rows, and id ->
	// last known version of deleted rows
	seen    map[string]string
	deleted map[string]string

	state    atomic.Int32
	tracked  atomic.Int64
	applied  atomic.Int64
	statusMu sync.Mutex
	last     string
	polling  pollLock
	pollers  sync.WaitGroup

	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
}

// pollResult carries a poll snapshot back to the merge goroutine
type pollResult[T any] struct {
	rows []T
	err  error
}

// Start launches a watch. It runs until ctx is cancelled or Close is called.
func Start[T Entity[T]](ctx context.Context, feed changefeed.Feed, stream Stream[T], cfg Config, log zerolog.Logger, opts ...Option) (*Watch[T], error) {
	if feed == nil {
		return nil, errors.New("change feed is required")
	}
	if stream.Key == "" || stream.Snapshot == nil || stream.Cache == nil {
		return nil, errors.New("stream needs a key, a snapshot func and a cache")
	}
	if !stream.Entity.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", stream.Entity)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watch[T]{
		stream: stream,
		feed:   feed,
		cfg:    cfg.withDefaults(),
		log: log.With().
			Str("component", "livesync").
			Str("entity", string(stream.Entity)).
			Str("key", stream.Key).
			Logger(),
		seen:    make(map[string]string),
		deleted: make(map[string]string),
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&w.hooks)
	}

	go w.run(ctx)
	return w, nil
}

// State returns the current connection state
func (w *Watch[T]) State() State {
	return State(w.state.Load())
}

// Status reports the watch state and merge counters
func (w *Watch[T]) Status() Status {
	w.statusMu.Lock()
	last := w.last
	w.statusMu.Unlock()

	return Status{
		Key:         w.stream.Key,
		Entity:      w.stream.Entity,
		State:       w.State(),
		Tracked:     w.tracked.Load(),
		Applied:     w.applied.Load(),
		LastEmitted: last,
	}
}

// Ready is closed once the list has been seeded from the first snapshot
func (w *Watch[T]) Ready() <-chan struct{} {
	return w.ready
}

// Done is closed once the watch has stopped
func (w *Watch[T]) Done() <-chan struct{} {
	return w.done
}

// Close stops the watch and waits for the merge goroutine and any poll in
// flight to exit
func (w *Watch[T]) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *Watch[T]) setState(s State) {
	if prev := State(w.state.Swap(int32(s))); prev != s {
		w.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state change")
	}
}

// run is the merge loop; every cache patch for this watch happens here
func (w *Watch[T]) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateClosed)
	defer w.pollers.Wait()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.cfg.ReconnectInitial
	exp.Multiplier = 2
	exp.MaxInterval = w.cfg.ReconnectMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	var pollC <-chan time.Time
	if w.cfg.Poll {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		pollC = ticker.C
	}
	pollResults := make(chan pollResult[T], 1)

	// Fires immediately for the first subscription
	retry := time.NewTimer(0)
	defer retry.Stop()

	var (
		sub    changefeed.Subscription
		events <-chan types.ChangeEvent
		errs   <-chan error
		seeded bool
	)
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-retry.C:
			w.setState(StateSubscribing)
			s, err := w.connect(ctx, seeded)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				wait := exp.NextBackOff()
				w.log.Warn().Err(err).Dur("retry_in", wait).Msg("subscribe failed")
				w.setState(StateReconnecting)
				retry.Reset(wait)
				continue
			}
			sub, events, errs = s, s.Events(), s.Errors()
			if !seeded {
				seeded = true
				close(w.ready)
			}
			exp.Reset()
			w.setState(StateLive)

		case evt := <-events:
			w.apply(evt)

		case err := <-errs:
			reconnectsTotal.WithLabelValues(string(w.stream.Entity)).Inc()
			_ = sub.Close()
			sub, events, errs = nil, nil, nil

			wait := exp.NextBackOff()
			w.log.Warn().Err(err).Dur("retry_in", wait).Msg("subscription lost, reconnecting")
			w.setState(StateReconnecting)
			retry.Reset(wait)

		case <-pollC:
			w.startPoll(ctx, pollResults)

		case res := <-pollResults:
			w.polling.Release()
			if res.err != nil {
				pollFailuresTotal.WithLabelValues(string(w.stream.Entity)).Inc()
				w.log.Warn().Err(res.err).Msg("poll failed")
				continue
			}
			w.mergeRows(res.rows, SourcePoll)
		}
	}
}

// connect subscribes and then takes a snapshot so no change falls between
// the two. The first snapshot replaces the list; later ones are merged.
func (w *Watch[T]) connect(ctx context.Context, seeded bool) (changefeed.Subscription, error) {
	sub, err := w.feed.Subscribe(ctx, w.stream.Entity, w.stream.Filter)
	if err != nil {
		return nil, err
	}

	if seeded {
		rows, err := w.stream.Snapshot(ctx)
		if err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("resync snapshot: %w", err)
		}
		w.mergeRows(rows, SourcePoll)
		return sub, nil
	}

	seq := w.stream.Cache.Begin(w.stream.Key)
	rows, err := w.stream.Snapshot(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	for i := range rows {
		rows[i] = w.decorate(rows[i])
		w.seen[rows[i].EntityID()] = rows[i].Version()
	}
	w.tracked.Store(int64(len(w.seen)))
	w.stream.Cache.Replace(w.stream.Key, seq, rows)
	return sub, nil
}

// startPoll snapshots in the background unless a poll is already running
func (w *Watch[T]) startPoll(ctx context.Context, results chan<- pollResult[T]) {
	if !w.polling.TryAcquire() {
		w.log.Debug().Msg("poll still in flight, skipping tick")
		return
	}
	w.pollers.Add(1)
	go func() {
		defer w.pollers.Done()
		rows, err := w.stream.Snapshot(ctx)
		// Capacity 1 and a single poll in flight, so this never blocks
		results <- pollResult[T]{rows: rows, err: err}
	}()
}

// mergeRows turns snapshot rows into inserts for unseen ids and updates for
// newer versions. Rows are visited last to first so prepended lists end
// up in snapshot order.
func (w *Watch[T]) mergeRows(rows []T, source Source) {
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		id := row.EntityID()

		if last, gone := w.deleted[id]; gone {
			// Not newer than the deleted row: the snapshot predates the delete
			if newer(last, row.Version()) {
				w.applyRow(types.OpInsert, row, source)
			}
			continue
		}

		prev, ok := w.seen[id]
		switch {
		case !ok:
			w.applyRow(types.OpInsert, row, source)
		case newer(prev, row.Version()):
			w.applyRow(types.OpUpdate, row, source)
		}
	}
}

// apply merges one pushed event
func (w *Watch[T]) apply(evt types.ChangeEvent) {
	if err := evt.Validate(); err != nil {
		w.dropMalformed(evt, err)
		return
	}
	if evt.EntityType != w.stream.Entity {
		w.dropMalformed(evt, fmt.Errorf("%w: unexpected entity %q", types.ErrMalformedEvent, evt.EntityType))
		return
	}

	if evt.Operation == types.OpDelete {
		w.applyDelete(evt)
		return
	}

	row, ok := payloadAs[T](evt.Payload)
	if !ok || row.EntityID() != evt.EntityID {
		w.dropMalformed(evt, fmt.Errorf("%w: payload does not match entity", types.ErrMalformedEvent))
		return
	}

	// A pushed row for a deleted id is a re-creation and always applies
	if prev, seen := w.seen[evt.EntityID]; seen {
		if evt.Operation == types.OpInsert || !newer(prev, row.Version()) {
			w.skipDuplicate(SourcePush)
			return
		}
	}
	w.applyRow(evt.Operation, row, SourcePush)
}

func (w *Watch[T]) applyRow(op types.Operation, row T, source Source) {
	row = w.decorate(row)
	id := row.EntityID()

	w.stream.Cache.Patch(w.stream.Key, op, row)
	w.seen[id] = row.Version()
	delete(w.deleted, id)
	w.emitted(id, source)

	if w.hooks.onApply != nil {
		w.hooks.onApply(types.ChangeEvent{
			EntityType: w.stream.Entity,
			Operation:  op,
			EntityID:   id,
			Payload:    row,
		})
	}
}

func (w *Watch[T]) applyDelete(evt types.ChangeEvent) {
	if _, gone := w.deleted[evt.EntityID]; gone {
		w.skipDuplicate(SourcePush)
		return
	}

	w.stream.Cache.Delete(w.stream.Key, evt.EntityID)
	w.deleted[evt.EntityID] = w.seen[evt.EntityID]
	delete(w.seen, evt.EntityID)
	w.emitted(evt.EntityID, SourcePush)

	if w.hooks.onApply != nil {
		w.hooks.onApply(evt)
	}
}

func (w *Watch[T]) emitted(id string, source Source) {
	w.statusMu.Lock()
	w.last = id
	w.statusMu.Unlock()

	w.tracked.Store(int64(len(w.seen)))
	w.applied.Add(1)
	eventsAppliedTotal.WithLabelValues(string(w.stream.Entity), string(source)).Inc()
}

func (w *Watch[T]) skipDuplicate(source Source) {
	duplicatesTotal.WithLabelValues(string(w.stream.Entity), string(source)).Inc()
}

func (w *Watch[T]) dropMalformed(evt types.ChangeEvent, err error) {
	malformedTotal.WithLabelValues(string(w.stream.Entity)).Inc()
	w.log.Warn().Err(err).
		Str("event_entity", string(evt.EntityType)).
		Str("op", string(evt.Operation)).
		Str("id", evt.EntityID).
		Msg("dropping malformed change event")
}

func (w *Watch[T]) decorate(row T) T {
	if w.stream.Decorate == nil {
		return row
	}
	return w.stream.Decorate(row)
}

// newer reports whether version next supersedes prev. Numeric versions
// compare by value, others only by inequality.
func newer(prev, next string) bool {
	p, perr := strconv.ParseInt(prev, 10, 64)
	n, nerr := strconv.ParseInt(next, 10, 64)
	if perr == nil && nerr == nil {
		return n > p
	}
	return prev != next
}

// payloadAs accepts a payload by value or by pointer
func payloadAs[T any](payload any) (T, bool) {
	switch p := payload.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}
