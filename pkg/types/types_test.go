package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCategory(t *testing.T) {
	tests := []struct {
		label string
		want  Category
		ok    bool
	}{
		{"NPCs", CategoryNPC, true},
		{"Items", CategoryMagicalItem, true},
		{"Mysteries", CategoryMystery, true},
		{"monster", CategoryMonster, true},
		{"All", "", false},
		{"", "", false},
		{"Dragons", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ResolveCategory(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetailItemValidate(t *testing.T) {
	conf := 1.5
	item := DetailItem{ID: "1", CampaignID: "c", Category: CategoryNPC}
	require.NoError(t, item.Validate())

	item.Category = "dragon"
	assert.ErrorIs(t, item.Validate(), ErrUnknownCategory)

	item.Category = CategoryQuest
	item.AIConfidence = &conf
	assert.ErrorIs(t, item.Validate(), ErrInvalidConfidence)

	item.ID = ""
	assert.ErrorIs(t, item.Validate(), ErrMissingID)
}

func TestDetailItemCloneIsDeep(t *testing.T) {
	item := DetailItem{
		ID:          "1",
		Metadata:    map[string]string{"race": "elf"},
		Description: StringPtr("tall"),
	}
	clone := item.Clone()
	clone.Metadata["race"] = "orc"
	*clone.Description = "short"

	assert.Equal(t, "elf", item.Metadata["race"])
	assert.Equal(t, "tall", item.DescriptionText())
}

func TestSearchFiltersThreshold(t *testing.T) {
	assert.Equal(t, DefaultSimilarityThreshold, SearchFilters{}.Threshold())
	assert.Equal(t, MinSimilarityThreshold, SearchFilters{SimilarityThreshold: 0.01}.Threshold())
	assert.Equal(t, MaxSimilarityThreshold, SearchFilters{SimilarityThreshold: 3}.Threshold())
	assert.Equal(t, 0.5, SearchFilters{SimilarityThreshold: 0.5}.Threshold())
}

func TestMessageBefore(t *testing.T) {
	now := time.Now()
	a := SessionMessage{ID: "b", CreatedAt: now}
	b := SessionMessage{ID: "a", CreatedAt: now.Add(time.Second)}
	c := SessionMessage{ID: "a", CreatedAt: now}

	assert.True(t, MessageBefore(a, b))
	assert.False(t, MessageBefore(b, a))
	assert.True(t, MessageBefore(c, a), "ties break on id")
}

func TestChangeEventRoundTrip(t *testing.T) {
	msg := SessionMessage{ID: "m1", SessionID: "s1", UserID: "u1", Content: "hello", Type: MessageText}
	raw, err := EncodeChangeEvent(ChangeEvent{
		EntityType: EntitySessionMessages,
		Operation:  OpInsert,
		EntityID:   msg.ID,
		Payload:    msg,
	})
	require.NoError(t, err)

	evt, err := DecodeChangeEvent(raw)
	require.NoError(t, err)
	decoded, ok := evt.Payload.(SessionMessage)
	require.True(t, ok, "payload should decode into SessionMessage")
	assert.Equal(t, "hello", decoded.Content)
	assert.Equal(t, OpInsert, evt.Operation)
}

func TestDecodeChangeEventMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"missing id":     `{"entity_type":"detail_items","operation":"insert","payload":{}}`,
		"unknown entity": `{"entity_type":"spells","operation":"insert","entity_id":"1"}`,
		"no payload":     `{"entity_type":"detail_items","operation":"update","entity_id":"1"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeChangeEvent([]byte(raw))
			assert.True(t, errors.Is(err, ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestDecodeChangeEventDeleteWithoutPayload(t *testing.T) {
	evt, err := DecodeChangeEvent([]byte(`{"entity_type":"detail_items","operation":"delete","entity_id":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", evt.EntityID)
	assert.Nil(t, evt.Payload)
}
