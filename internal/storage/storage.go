package storage

import (
	"context"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Store defines the catalog store adapter consumed by the search engine and
// the live-synchronization layer
type Store interface {
	// Detail item operations
	QueryDetailItems(ctx context.Context, q ItemQuery) ([]types.DetailItem, error)
	GetDetailItem(ctx context.Context, campaignID, id string) (*types.DetailItem, error)
	UpsertDetailItem(ctx context.Context, item *types.DetailItem) error
	DeleteDetailItem(ctx context.Context, campaignID, id string) error

	// Session message operations
	ListSessionMessages(ctx context.Context, sessionID string) ([]types.SessionMessage, error)
	AppendSessionMessage(ctx context.Context, msg *types.SessionMessage) error

	// User profile operations
	UpsertUserProfile(ctx context.Context, profile *types.UserProfile) error
	GetUserProfiles(ctx context.Context, ids []string) ([]types.UserProfile, error)

	// Database operations
	Ping(ctx context.Context) error
	Close() error
}

// Publisher receives change events for every successful write.
// Implemented by the change feed transports.
type Publisher interface {
	Publish(ctx context.Context, evt types.ChangeEvent) error
}

// MatchMode selects the text predicate applied by QueryDetailItems
type MatchMode int

const (
	// MatchNone applies no text predicate
	MatchNone MatchMode = iota
	// MatchSubstring is a case-insensitive substring match on name or description
	MatchSubstring
	// MatchFullText is a token-based full-text match on name and description
	MatchFullText
)

// ItemQuery contains the predicates and ordering for a detail item query
type ItemQuery struct {
	CampaignID string         // Required equality filter
	Category   types.Category // Optional equality filter
	IDs        []string       // Optional id IN filter
	Match      MatchMode
	Text       string
	OrderBy    types.SortKey // relevance orders by created_at
	Descending bool
	Limit      int // 0 means unlimited
}

// OrderColumn maps a sort key onto a stored column
func OrderColumn(key types.SortKey) string {
	switch key {
	case types.SortName:
		return "name"
	case types.SortUpdatedAt:
		return "updated_at"
	default:
		return "created_at"
	}
}
