package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// SeedData is the JSON document accepted by Seed
type SeedData struct {
	UserProfiles    []types.UserProfile    `json:"user_profiles"`
	DetailItems     []types.DetailItem     `json:"detail_items"`
	SessionMessages []types.SessionMessage `json:"session_messages"`
}

// SeedStats counts the rows written by Seed
type SeedStats struct {
	Profiles int `json:"profiles"`
	Items    int `json:"items"`
	Messages int `json:"messages"`
	Skipped  int `json:"skipped"`
}

// Seed loads profiles, detail items and messages from r. Messages that
// already exist are skipped so a file can be applied twice.
func (a *App) Seed(ctx context.Context, r io.Reader) (SeedStats, error) {
	var data SeedData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return SeedStats{}, fmt.Errorf("failed to decode seed file: %w", err)
	}

	var stats SeedStats
	// Campaigns without a watch never see the change events
	defer func() {
		if stats.Items > 0 {
			a.Searcher.InvalidateCache()
		}
	}()
	for i := range data.UserProfiles {
		if err := a.Store.UpsertUserProfile(ctx, &data.UserProfiles[i]); err != nil {
			return stats, fmt.Errorf("profile %q: %w", data.UserProfiles[i].ID, err)
		}
		stats.Profiles++
	}

	for i := range data.DetailItems {
		if err := a.Store.UpsertDetailItem(ctx, &data.DetailItems[i]); err != nil {
			return stats, fmt.Errorf("detail item %q: %w", data.DetailItems[i].Name, err)
		}
		stats.Items++
	}

	for i := range data.SessionMessages {
		err := a.Store.AppendSessionMessage(ctx, &data.SessionMessages[i])
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			stats.Skipped++
		case err != nil:
			return stats, fmt.Errorf("session message %q: %w", data.SessionMessages[i].ID, err)
		default:
			stats.Messages++
		}
	}

	a.log.Info().
		Int("profiles", stats.Profiles).
		Int("items", stats.Items).
		Int("messages", stats.Messages).
		Int("skipped", stats.Skipped).
		Msg("seed applied")
	return stats, nil
}

// PostMessage appends a message to a session transcript. The store
// publishes the insert, which reaches live watches through the feed.
func (a *App) PostMessage(ctx context.Context, sessionID, userID, content string, msgType types.MessageType) (types.SessionMessage, error) {
	msg := types.SessionMessage{
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
		Type:      msgType,
	}
	if err := a.Store.AppendSessionMessage(ctx, &msg); err != nil {
		return types.SessionMessage{}, err
	}
	return a.Profiles.Decorate(msg), nil
}

// Search answers a catalog query with the configured similarity default.
// Callers that serve repeated queries should hold a WatchCampaign so cached
// results are invalidated on change.
func (a *App) Search(ctx context.Context, campaignID string, filters types.SearchFilters) ([]types.SearchResult, error) {
	return a.Catalog.Fetch(ctx, campaignID, a.withDefaults(filters))
}

// CachedSearch returns the list the last Search with these filters seeded
func (a *App) CachedSearch(campaignID string, filters types.SearchFilters) []types.DetailItem {
	return a.Catalog.Cached(campaignID, a.withDefaults(filters))
}

// CampaignItems returns the live list kept by the campaign's watch, newest
// first. Deleted items stay listed under the retain policy; Tombstoned
// reports them.
func (a *App) CampaignItems(campaignID string) []types.DetailItem {
	return a.Items.Get(campaignID)
}

// Tombstoned reports whether a campaign's live list holds id as deleted
func (a *App) Tombstoned(campaignID, id string) bool {
	return a.Items.Tombstoned(campaignID, id)
}

func (a *App) withDefaults(filters types.SearchFilters) types.SearchFilters {
	if filters.SimilarityThreshold == 0 {
		filters.SimilarityThreshold = a.Config.SimilarityThreshold
	}
	return filters
}
