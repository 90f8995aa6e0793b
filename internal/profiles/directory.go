// Package profiles keeps the user-profile directory used to decorate session
// message authors.
package profiles

import (
	"context"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/changefeed"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Source loads profiles by user id
type Source interface {
	GetUserProfiles(ctx context.Context, ids []string) ([]types.UserProfile, error)
}

// Directory is a concurrency-safe map of user id to profile
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]types.UserProfile
	source   Source
	log      zerolog.Logger
}

// NewDirectory creates an empty directory backed by source
func NewDirectory(source Source, log zerolog.Logger) *Directory {
	return &Directory{
		profiles: make(map[string]types.UserProfile),
		source:   source,
		log:      log.With().Str("component", "profiles").Logger(),
	}
}

// Load fetches the profiles in ids that are not already known
func (d *Directory) Load(ctx context.Context, ids []string) error {
	d.mu.RLock()
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := d.profiles[id]; !ok && id != "" {
			missing = append(missing, id)
		}
	}
	d.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	profiles, err := d.source.GetUserProfiles(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return nil
}

// Lookup returns the profile for id
func (d *Directory) Lookup(id string) (types.UserProfile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	return p, ok
}

// Len returns the number of known profiles
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.profiles)
}

// Decorate sets the message author from the directory. Messages from
// unknown users keep whatever author they already carry.
func (d *Directory) Decorate(msg types.SessionMessage) types.SessionMessage {
	if p, ok := d.Lookup(msg.UserID); ok {
		msg.Author = p.AsAuthor()
	}
	return msg
}

// Apply merges a user_profiles change event and reports whether the
// directory changed. Events for other collections are ignored.
func (d *Directory) Apply(evt types.ChangeEvent) bool {
	if evt.EntityType != types.EntityUserProfiles {
		return false
	}
	if err := evt.Validate(); err != nil {
		d.log.Warn().Err(err).Str("id", evt.EntityID).Msg("dropping malformed profile event")
		return false
	}

	if evt.Operation == types.OpDelete {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.profiles[evt.EntityID]; !ok {
			return false
		}
		delete(d.profiles, evt.EntityID)
		return true
	}

	var profile types.UserProfile
	switch p := evt.Payload.(type) {
	case types.UserProfile:
		profile = p
	case *types.UserProfile:
		if p == nil {
			return false
		}
		profile = *p
	default:
		d.log.Warn().Str("id", evt.EntityID).Msgf("unexpected profile payload %T", evt.Payload)
		return false
	}
	if profile.ID != evt.EntityID {
		d.log.Warn().Str("id", evt.EntityID).Str("payload_id", profile.ID).Msg("profile id mismatch")
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[profile.ID] = profile
	return true
}

// Run applies profile events from feed until ctx is cancelled. A failed
// subscription is retried with exponential backoff capped at maxInterval.
// onChange, when set, runs after each applied event.
func (d *Directory) Run(ctx context.Context, feed changefeed.Feed, initial, maxInterval time.Duration, onChange func(types.ChangeEvent)) error {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if maxInterval < initial {
		maxInterval = initial
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.Multiplier = 2
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	for {
		err := d.consume(ctx, feed, exp, onChange)
		if ctx.Err() != nil {
			return nil
		}

		wait := exp.NextBackOff()
		d.log.Warn().Err(err).Dur("retry_in", wait).Msg("profile subscription lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// consume reads one subscription until it fails
func (d *Directory) consume(ctx context.Context, feed changefeed.Feed, exp backoff.BackOff, onChange func(types.ChangeEvent)) error {
	sub, err := feed.Subscribe(ctx, types.EntityUserProfiles, changefeed.Filter{})
	if err != nil {
		return err
	}
	defer sub.Close()
	exp.Reset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Errors():
			return err
		case evt := <-sub.Events():
			if d.Apply(evt) && onChange != nil {
				onChange(evt)
			}
		}
	}
}
