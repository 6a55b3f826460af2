// Package subscription provides the listener plumbing shared by the socket,
// transport and signal sources.
//
// Registry is a set of listeners that is safe to mutate while a notification
// is in flight: Notify iterates over a snapshot, so a listener removing itself
// (or another) neither skips nor panics the remaining deliveries. A panicking
// listener is recovered and logged.
//
// Queue is an unbounded ordered queue used where events produced on many
// goroutines must be consumed in order by a single one, such as state
// transition dispatch.
package subscription
