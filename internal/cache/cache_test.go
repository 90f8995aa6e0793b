package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/pkg/types"
)

var base = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func message(id string, minute int) types.SessionMessage {
	return types.SessionMessage{
		ID:        id,
		SessionID: "s1",
		UserID:    "u1",
		Content:   "msg " + id,
		Type:      types.MessageText,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func item(id, name string) types.DetailItem {
	return types.DetailItem{ID: id, CampaignID: "c1", Name: name, Category: types.CategoryNPC,
		Metadata: map[string]string{"k": "v"}}
}

func messageIDs(msgs []types.SessionMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func itemIDs(items []types.DetailItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeleteRetain, p)

	p, err = ParseDeletePolicy("prune")
	require.NoError(t, err)
	assert.Equal(t, DeletePrune, p)

	_, err = ParseDeletePolicy("shred")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestPatch_PrependsDetailItems(t *testing.T) {
	c := New(Options[types.DetailItem]{})

	c.Patch("c1", types.OpInsert, item("1", "first"))
	c.Patch("c1", types.OpInsert, item("2", "second"))
	assert.Equal(t, []string{"2", "1"}, itemIDs(c.Get("c1")))

	// Update replaces in place
	updated := item("1", "renamed")
	assert.True(t, c.Patch("c1", types.OpUpdate, updated))
	got := c.Get("c1")
	assert.Equal(t, []string{"2", "1"}, itemIDs(got))
	assert.Equal(t, "renamed", got[1].Name)

	// Update of an absent item inserts it
	c.Patch("c1", types.OpUpdate, item("3", "late"))
	assert.Equal(t, []string{"3", "2", "1"}, itemIDs(c.Get("c1")))
}

func TestPatch_DuplicateInsertIsIdempotent(t *testing.T) {
	c := New(Options[types.DetailItem]{})
	c.Patch("c1", types.OpInsert, item("42", "x"))
	c.Patch("c1", types.OpInsert, item("42", "x"))
	assert.Len(t, c.Get("c1"), 1)
}

func TestPatch_OrdersMessagesByCreatedAt(t *testing.T) {
	c := New(Options[types.SessionMessage]{Less: types.MessageBefore})

	c.Patch("s1", types.OpInsert, message("m3", 3))
	c.Patch("s1", types.OpInsert, message("m1", 1))
	c.Patch("s1", types.OpInsert, message("m2", 2))
	c.Patch("s1", types.OpInsert, message("m0", 0))
	assert.Equal(t, []string{"m0", "m1", "m2", "m3"}, messageIDs(c.Get("s1")))

	// Equal timestamps order by id
	c.Patch("s1", types.OpInsert, message("m2b", 2))
	assert.Equal(t, []string{"m0", "m1", "m2", "m2b", "m3"}, messageIDs(c.Get("s1")))
}

func TestPatch_DeletePolicies(t *testing.T) {
	tests := []struct {
		policy      DeletePolicy
		wantIDs     []string
		wantChanged bool
		tombstoned  bool
	}{
		{DeleteRetain, []string{"2", "1"}, true, true},
		{DeletePrune, []string{"2"}, true, false},
		{DeleteIgnore, []string{"2", "1"}, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			c := New(Options[types.DetailItem]{Delete: tt.policy})
			c.Patch("c1", types.OpInsert, item("1", "a"))
			c.Patch("c1", types.OpInsert, item("2", "b"))

			changed := c.Patch("c1", types.OpDelete, types.DetailItem{ID: "1"})
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantIDs, itemIDs(c.Get("c1")))
			assert.Equal(t, tt.tombstoned, c.Tombstoned("c1", "1"))
		})
	}
}

func TestPatch_RetainThenReinsert(t *testing.T) {
	c := New(Options[types.DetailItem]{})
	c.Patch("c1", types.OpInsert, item("1", "a"))

	assert.True(t, c.Patch("c1", types.OpDelete, types.DetailItem{ID: "1"}))
	assert.False(t, c.Patch("c1", types.OpDelete, types.DetailItem{ID: "1"}), "second delete is a no-op")
	assert.False(t, c.Patch("c1", types.OpDelete, types.DetailItem{ID: "missing"}))

	c.Patch("c1", types.OpInsert, item("1", "back"))
	assert.False(t, c.Tombstoned("c1", "1"))

	assert.True(t, c.Delete("c1", "1"), "delete by id")
	assert.True(t, c.Tombstoned("c1", "1"))
}

func TestReplace_SequenceGuard(t *testing.T) {
	c := New(Options[types.DetailItem]{})

	first := c.Begin("c1")
	second := c.Begin("c1")
	assert.Greater(t, second, first)

	assert.True(t, c.Replace("c1", second, []types.DetailItem{item("new", "fresh")}))
	assert.False(t, c.Replace("c1", first, []types.DetailItem{item("old", "stale")}), "stale response discarded")
	assert.Equal(t, []string{"new"}, itemIDs(c.Get("c1")))

	// Sequences are per key
	other := c.Begin("c2")
	assert.True(t, c.Replace("c2", other, []types.DetailItem{item("x", "x")}))
}

func TestReplace_SortsOrderedLists(t *testing.T) {
	c := New(Options[types.SessionMessage]{Less: types.MessageBefore})
	seq := c.Begin("s1")
	c.Replace("s1", seq, []types.SessionMessage{message("b", 2), message("a", 1)})
	assert.Equal(t, []string{"a", "b"}, messageIDs(c.Get("s1")))
}

func TestReplace_ClearsTombstones(t *testing.T) {
	c := New(Options[types.DetailItem]{})
	c.Patch("c1", types.OpInsert, item("1", "a"))
	c.Patch("c1", types.OpDelete, types.DetailItem{ID: "1"})
	require.True(t, c.Tombstoned("c1", "1"))

	c.Replace("c1", c.Begin("c1"), []types.DetailItem{item("1", "a")})
	assert.False(t, c.Tombstoned("c1", "1"))
}

func TestGet_ReturnsCopies(t *testing.T) {
	c := New(Options[types.DetailItem]{})
	in := item("1", "a")
	c.Patch("c1", types.OpInsert, in)
	in.Metadata["k"] = "changed by writer"

	out := c.Get("c1")
	assert.Equal(t, "v", out[0].Metadata["k"])
	out[0].Metadata["k"] = "changed by reader"
	assert.Equal(t, "v", c.Get("c1")[0].Metadata["k"])

	assert.Empty(t, c.Get("unknown"))
	assert.False(t, c.Has("unknown"))
	assert.True(t, c.Has("c1"))
}

func TestOnUpdate(t *testing.T) {
	c := New(Options[types.DetailItem]{Delete: DeleteIgnore})

	var calls int
	var last []types.DetailItem
	cancel := c.OnUpdate("c1", func(items []types.DetailItem) {
		calls++
		last = items
	})
	var otherCalls int
	c.OnUpdate("c2", func([]types.DetailItem) { otherCalls++ })

	c.Replace("c1", c.Begin("c1"), []types.DetailItem{item("1", "a")})
	c.Patch("c1", types.OpInsert, item("2", "b"))
	c.Patch("c1", types.OpDelete, types.DetailItem{ID: "1"}) // ignored, no notification

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"2", "1"}, itemIDs(last))
	assert.Equal(t, 0, otherCalls)

	cancel()
	c.Patch("c1", types.OpInsert, item("3", "c"))
	assert.Equal(t, 2, calls)
}
