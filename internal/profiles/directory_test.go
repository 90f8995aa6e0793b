package profiles

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/changefeed"
	"github.com/dshills/lorekeeper/pkg/types"
)

// mockSource implements Source for testing
type mockSource struct {
	getUserProfilesFunc func(ctx context.Context, ids []string) ([]types.UserProfile, error)
}

func (m *mockSource) GetUserProfiles(ctx context.Context, ids []string) ([]types.UserProfile, error) {
	if m.getUserProfilesFunc != nil {
		return m.getUserProfilesFunc(ctx, ids)
	}
	return nil, nil
}

func profileEvent(op types.Operation, p types.UserProfile) types.ChangeEvent {
	return types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: op, EntityID: p.ID, Payload: p}
}

func TestLoad_FetchesOnlyMissing(t *testing.T) {
	var requested [][]string
	src := &mockSource{getUserProfilesFunc: func(ctx context.Context, ids []string) ([]types.UserProfile, error) {
		requested = append(requested, ids)
		out := make([]types.UserProfile, 0, len(ids))
		for _, id := range ids {
			out = append(out, types.UserProfile{ID: id, DisplayName: "user " + id})
		}
		return out, nil
	}}
	d := NewDirectory(src, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, d.Load(ctx, []string{"u1", "u2"}))
	require.NoError(t, d.Load(ctx, []string{"u1", "u2", "u3", ""}))
	require.NoError(t, d.Load(ctx, []string{"u3"}))

	assert.Equal(t, [][]string{{"u1", "u2"}, {"u3"}}, requested)
	assert.Equal(t, 3, d.Len())
}

func TestLoad_Error(t *testing.T) {
	src := &mockSource{getUserProfilesFunc: func(ctx context.Context, ids []string) ([]types.UserProfile, error) {
		return nil, errors.New("boom")
	}}
	d := NewDirectory(src, zerolog.Nop())
	assert.Error(t, d.Load(context.Background(), []string{"u1"}))
}

func TestDecorate(t *testing.T) {
	d := NewDirectory(&mockSource{}, zerolog.Nop())
	avatar := "https://example.com/a.png"
	d.Apply(profileEvent(types.OpInsert, types.UserProfile{ID: "u1", DisplayName: "Mira", AvatarURL: &avatar}))

	msg := d.Decorate(types.SessionMessage{ID: "m1", UserID: "u1"})
	assert.Equal(t, "Mira", msg.Author.DisplayName)
	require.NotNil(t, msg.Author.AvatarURL)
	assert.Equal(t, avatar, *msg.Author.AvatarURL)

	// Unknown users keep their author
	msg = d.Decorate(types.SessionMessage{ID: "m2", UserID: "u9", Author: types.Author{DisplayName: "guest"}})
	assert.Equal(t, "guest", msg.Author.DisplayName)
}

func TestApply(t *testing.T) {
	d := NewDirectory(&mockSource{}, zerolog.Nop())

	assert.True(t, d.Apply(profileEvent(types.OpInsert, types.UserProfile{ID: "u1", DisplayName: "Mira"})))
	assert.True(t, d.Apply(profileEvent(types.OpUpdate, types.UserProfile{ID: "u1", DisplayName: "Mira the Bold"})))
	p, ok := d.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "Mira the Bold", p.DisplayName)

	ptr := &types.UserProfile{ID: "u2", DisplayName: "Tam"}
	assert.True(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpInsert,
		EntityID: "u2", Payload: ptr}))

	// Ignored or malformed
	assert.False(t, d.Apply(types.ChangeEvent{EntityType: types.EntitySessionMessages, Operation: types.OpInsert,
		EntityID: "m1", Payload: types.SessionMessage{ID: "m1"}}))
	assert.False(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpInsert,
		EntityID: "u3", Payload: types.UserProfile{ID: "u4"}}))
	assert.False(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpInsert,
		EntityID: "u3", Payload: "u3"}))
	assert.False(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpInsert}))

	assert.True(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpDelete, EntityID: "u1"}))
	assert.False(t, d.Apply(types.ChangeEvent{EntityType: types.EntityUserProfiles, Operation: types.OpDelete, EntityID: "u1"}))
	_, ok = d.Lookup("u1")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}

func TestRun_AppliesFeedEvents(t *testing.T) {
	bus := changefeed.NewBus(8, zerolog.Nop())
	d := NewDirectory(&mockSource{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, bus, 5*time.Millisecond, 10*time.Millisecond, func(types.ChangeEvent) { changes.Add(1) })
	}()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(ctx, profileEvent(types.OpInsert, types.UserProfile{ID: "u1", DisplayName: "Mira"})))
	require.Eventually(t, func() bool { return d.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, types.ChangeEvent{EntityType: types.EntityUserProfiles,
		Operation: types.OpDelete, EntityID: "u1"}))
	require.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), changes.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

// flakyFeed fails its first subscription from the stream side
type flakyFeed struct {
	*changefeed.Bus
	attempts atomic.Int32
}

func (f *flakyFeed) Subscribe(ctx context.Context, entity types.EntityType, filter changefeed.Filter) (changefeed.Subscription, error) {
	if f.attempts.Add(1) == 1 {
		return nil, errors.New("connection refused")
	}
	return f.Bus.Subscribe(ctx, entity, filter)
}

func TestRun_RetriesSubscription(t *testing.T) {
	feed := &flakyFeed{Bus: changefeed.NewBus(8, zerolog.Nop())}
	d := NewDirectory(&mockSource{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx, feed, 5*time.Millisecond, 10*time.Millisecond, nil) }()

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, feed.attempts.Load(), int32(2))

	require.NoError(t, feed.Publish(ctx, profileEvent(types.OpInsert, types.UserProfile{ID: "u1", DisplayName: "Mira"})))
	require.Eventually(t, func() bool { return d.Len() == 1 }, time.Second, 5*time.Millisecond)
}
