package state

import (
	"fmt"

	"github.com/rickgao/feeds-realtime/internal/api"
)

// SourceKind identifies why a connection ended.
type SourceKind int

const (
	UserInitiated SourceKind = iota
	ServerInitiated
	SystemInitiated
	NoPongReceived
)

func (k SourceKind) String() string {
	switch k {
	case UserInitiated:
		return "user_initiated"
	case ServerInitiated:
		return "server_initiated"
	case SystemInitiated:
		return "system_initiated"
	case NoPongReceived:
		return "no_pong_received"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Source is the cause of a disconnection. Err is only set for ServerInitiated
// and may be nil there too.
type Source struct {
	Kind SourceKind
	Err  *api.APIError
}

// ByUser returns a UserInitiated source.
func ByUser() Source { return Source{Kind: UserInitiated} }

// ByServer returns a ServerInitiated source carrying err.
func ByServer(err *api.APIError) Source { return Source{Kind: ServerInitiated, Err: err} }

// BySystem returns a SystemInitiated source.
func BySystem() Source { return Source{Kind: SystemInitiated} }

// ByNoPong returns a NoPongReceived source.
func ByNoPong() Source { return Source{Kind: NoPongReceived} }

// IsAutomaticReconnectionEnabled reports whether a connection that ended for
// this reason should be re-established without user action.
func (s Source) IsAutomaticReconnectionEnabled() bool {
	switch s.Kind {
	case UserInitiated:
		return false
	case ServerInitiated:
		if s.Err == nil {
			return true
		}
		return !s.Err.IsNormalClosure() && !s.Err.IsTokenInvalid() && !s.Err.IsClientError()
	case SystemInitiated, NoPongReceived:
		return true
	default:
		return false
	}
}

func (s Source) String() string {
	if s.Kind == ServerInitiated && s.Err != nil {
		return fmt.Sprintf("%s(code=%d)", s.Kind, s.Err.Code)
	}
	return s.Kind.String()
}
