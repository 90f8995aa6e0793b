// Package storage provides the catalog store adapter backing search and sync.
//
// The storage layer manages:
//   - Detail items (campaign knowledge) with an FTS5 full-text index
//   - Session transcript messages
//   - User profiles used to decorate message authors
//
// # Database Schema
//
// Tables:
//   - detail_items: Knowledge catalog rows, timestamps stored as unix nanoseconds
//   - detail_items_fts: FTS5 index over name and description
//   - session_messages: Append-only transcript entries
//   - user_profiles: Display names and avatars
//   - schema_version: Applied migrations (semver)
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("lore.db", storage.WithPublisher(bus))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	items, err := store.QueryDetailItems(ctx, storage.ItemQuery{
//	    CampaignID: "campaign-1",
//	    Category:   types.CategoryNPC,
//	    Match:      storage.MatchSubstring,
//	    Text:       "goblin",
//	    OrderBy:    types.SortCreatedAt,
//	    Descending: true,
//	})
//
// # Match Modes
//
// MatchSubstring is a case-insensitive LIKE on name or description with
// wildcards escaped. MatchFullText tokenizes the text and matches every
// token as a prefix term against the FTS5 index. MatchNone lists rows.
//
// # Change Events
//
// When a Publisher is configured every successful write publishes a
// ChangeEvent (insert, update or delete). Publishing is best effort: a failed
// publish is logged and the write still succeeds, since subscribers run a
// poll backstop.
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags "cgo_sqlite,sqlite_fts5" switches to github.com/mattn/go-sqlite3.
// The postgres subpackage implements the same Store against PostgreSQL.
package storage
