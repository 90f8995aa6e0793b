// Package livesync keeps client cache lists current from the change feed.
//
// A Watch owns one list (a campaign's detail items or a session transcript).
// It subscribes to the change feed, seeds the list from a snapshot and then
// merges pushed events as they arrive. When polling is enabled a periodic
// snapshot is merged as well, so rows missed by the push path still appear.
//
// All merges for a watch run on a single goroutine. Every row is remembered
// by id and version, so an event seen through both push and poll patches the
// list once. Transport failures move the watch to Reconnecting and it
// resubscribes with capped exponential backoff while polling continues.
//
// State machine:
//
//	Disconnected -> Subscribing -> Live -> Reconnecting -> Subscribing ...
//	any state -> Closed (Close or context cancellation)
package livesync
