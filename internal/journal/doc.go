// Package journal persists delivered feed events to PostgreSQL.
//
// Events are queued without blocking the socket's delivery goroutine and
// written in pgx batches when the batch fills or the flush interval elapses.
// Rows are append-only; every row carries the journal's run id so restarts
// can be told apart.
package journal
