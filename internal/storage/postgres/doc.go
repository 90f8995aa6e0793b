// Package postgres provides the server-side catalog store and a change feed
// built on Postgres LISTEN/NOTIFY, both over a pgx connection pool.
package postgres
