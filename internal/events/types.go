package events

import (
	"encoding/json"
	"time"

	"github.com/rickgao/feeds-realtime/internal/api"
	"github.com/rickgao/feeds-realtime/internal/model"
)

// Event types.
const (
	TypeConnectionOK    = "connection.ok"
	TypeConnectionError = "connection.error"
	TypeHealthCheck     = "health.check"

	TypeActivityAdded           = "feeds.activity.added"
	TypeActivityUpdated         = "feeds.activity.updated"
	TypeActivityDeleted         = "feeds.activity.deleted"
	TypeActivityReactionAdded   = "feeds.activity.reaction.added"
	TypeActivityReactionDeleted = "feeds.activity.reaction.deleted"
	TypeCommentAdded            = "feeds.comment.added"
	TypeCommentUpdated          = "feeds.comment.updated"
	TypeCommentDeleted          = "feeds.comment.deleted"
	TypeFollowCreated           = "feeds.follow.created"
	TypeFollowDeleted           = "feeds.follow.deleted"
	TypeBookmarkAdded           = "feeds.bookmark.added"
	TypeBookmarkDeleted         = "feeds.bookmark.deleted"
	TypePollVoteCasted          = "feeds.poll.vote_casted"
	TypePollClosed              = "feeds.poll.closed"
)

// Event is a decoded socket frame.
type Event interface {
	Type() string
}

// Base holds the fields shared by every feed event.
type Base struct {
	EventType string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Fid       string    `json:"fid,omitempty"`
}

func (b Base) Type() string { return b.EventType }

func (b Base) header() Base { return b }

// Header returns the shared fields of ev when it carries them.
func Header(ev Event) (Base, bool) {
	h, ok := ev.(interface{ header() Base })
	if !ok {
		return Base{}, false
	}
	return h.header(), true
}

// ConnectedEvent acknowledges the auth handshake.
type ConnectedEvent struct {
	Base
	ConnectionID string         `json:"connection_id"`
	Me           *model.OwnUser `json:"me,omitempty"`
}

// ConnectionErrorEvent reports a handshake or session error.
type ConnectionErrorEvent struct {
	Base
	ConnectionID string        `json:"connection_id"`
	Error        *api.APIError `json:"error"`
}

// HealthCheckEvent is the server's liveness frame.
type HealthCheckEvent struct {
	Base
	ConnectionID string `json:"connection_id"`
}

type ActivityAddedEvent struct {
	Base
	Activity model.Activity `json:"activity"`
}

type ActivityUpdatedEvent struct {
	Base
	Activity model.Activity `json:"activity"`
}

type ActivityDeletedEvent struct {
	Base
	Activity model.Activity `json:"activity"`
}

type ActivityReactionAddedEvent struct {
	Base
	Activity model.Activity `json:"activity"`
	Reaction model.Reaction `json:"reaction"`
}

type ActivityReactionDeletedEvent struct {
	Base
	Activity model.Activity `json:"activity"`
	Reaction model.Reaction `json:"reaction"`
}

type CommentAddedEvent struct {
	Base
	Comment model.Comment `json:"comment"`
}

type CommentUpdatedEvent struct {
	Base
	Comment model.Comment `json:"comment"`
}

type CommentDeletedEvent struct {
	Base
	Comment model.Comment `json:"comment"`
}

type FollowCreatedEvent struct {
	Base
	Follow model.Follow `json:"follow"`
}

type FollowDeletedEvent struct {
	Base
	Follow model.Follow `json:"follow"`
}

type BookmarkAddedEvent struct {
	Base
	Bookmark model.Bookmark `json:"bookmark"`
}

type BookmarkDeletedEvent struct {
	Base
	Bookmark model.Bookmark `json:"bookmark"`
}

type PollVoteCastedEvent struct {
	Base
	Poll     model.Poll     `json:"poll"`
	PollVote model.PollVote `json:"poll_vote"`
}

type PollClosedEvent struct {
	Base
	Poll model.Poll `json:"poll"`
}

// UnknownEvent carries a frame whose type is not recognized.
type UnknownEvent struct {
	EventType string
	Raw       json.RawMessage
}

func (e *UnknownEvent) Type() string { return e.EventType }

// ErrorEvent is a frame that only decoded as a bare APIError envelope.
type ErrorEvent struct {
	Err *api.APIError
}

func (e *ErrorEvent) Type() string { return TypeConnectionError }
