// Package database provides the PostgreSQL connection pool for the event journal.
//
// The journal stores one row per delivered event in feed_events; see Schema.
package database
