// Package changefeed delivers store change events to subscribers.
//
// A Feed publishes ChangeEvents for each entity collection and lets
// consumers subscribe to one collection, optionally narrowed by a
// single-field equality Filter. Three transports implement Feed:
//
//   - Bus: in-process fan-out, used by the embedded SQLite deployment and tests
//   - RedisFeed: Redis pub/sub, one channel per collection
//   - postgres.Feed: Postgres LISTEN/NOTIFY (see internal/storage/postgres)
//
// Subscriptions report transport failures on Errors(); a failed
// subscription delivers no further events and the consumer is expected to
// resubscribe.
package changefeed
