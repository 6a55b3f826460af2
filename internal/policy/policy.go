// Package policy holds the predicates that gate automatic reconnection.
//
// Policies only read state; evaluating one has no side effects.
package policy

import "github.com/rickgao/feeds-realtime/internal/state"

// Policy decides whether a reconnect attempt may proceed.
type Policy interface {
	ShouldReconnect() bool
}

// Func adapts a function to Policy.
type Func func() bool

func (f Func) ShouldReconnect() bool { return f() }

// NetworkMonitor reports validated internet connectivity.
type NetworkMonitor interface {
	IsConnected() bool
}

// LifecycleMonitor reports whether the host application is in the foreground.
type LifecycleMonitor interface {
	IsResumed() bool
}

// StateSource exposes the current connection state.
type StateSource interface {
	State() state.State
}

// Network allows reconnecting while the network is available.
func Network(m NetworkMonitor) Policy { return Func(m.IsConnected) }

// Lifecycle allows reconnecting while the application is resumed.
func Lifecycle(m LifecycleMonitor) Policy { return Func(m.IsResumed) }

// ConnectionState allows reconnecting when the current state is a
// disconnection whose cause permits it.
func ConnectionState(s StateSource) Policy {
	return Func(func() bool { return s.State().IsAutomaticReconnectionEnabled() })
}

type all []Policy

// All requires every policy to allow reconnecting. An empty All allows it.
func All(policies ...Policy) Policy { return all(policies) }

func (a all) ShouldReconnect() bool {
	for _, p := range a {
		if !p.ShouldReconnect() {
			return false
		}
	}
	return true
}

type anyOf []Policy

// Any requires at least one policy to allow reconnecting. An empty Any never
// allows it.
func Any(policies ...Policy) Policy { return anyOf(policies) }

func (a anyOf) ShouldReconnect() bool {
	for _, p := range a {
		if p.ShouldReconnect() {
			return true
		}
	}
	return false
}
