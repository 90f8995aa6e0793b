// Package types provides shared type definitions for lorekeeper.
//
// This package defines the domain values exchanged between the catalog store,
// the search engine, the change feed and the client cache.
//
// # Core Types
//
// DetailItem is a piece of derived campaign knowledge. Its category is drawn
// from a closed set:
//
//	item := types.DetailItem{
//	    ID:         "c0ffee",
//	    CampaignID: "campaign-1",
//	    Name:       "Evil NPC",
//	    Category:   types.CategoryNPC,
//	}
//
// SearchFilters is a per-query value object. SearchResult embeds the matched
// DetailItem together with its relevance score and the strategy that produced it.
//
// SessionMessage is an append-only transcript entry keyed by session id and
// ordered by CreatedAt.
//
// # Change Events
//
// ChangeEvent is the unit both the push feed and the poll backstop produce.
// EncodeChangeEvent and DecodeChangeEvent implement the JSON envelope network
// transports use; decoding yields typed payloads:
//
//	evt, err := types.DecodeChangeEvent(raw)
//	if errors.Is(err, types.ErrMalformedEvent) {
//	    // drop it
//	}
//	item := evt.Payload.(types.DetailItem)
//
// # Validation
//
// Domain types implement Validate to enforce their invariants:
//
//	if err := item.Validate(); err != nil {
//	    return err
//	}
package types
