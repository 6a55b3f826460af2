package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rickgao/feeds-realtime/internal/api"
)

// Errors
var (
	ErrInvalidJSON = errors.New("invalid json frame")
	ErrUndecodable = errors.New("undecodable frame")
)

var catalogue = map[string]func() Event{
	TypeHealthCheck:             func() Event { return &HealthCheckEvent{} },
	TypeActivityAdded:           func() Event { return &ActivityAddedEvent{} },
	TypeActivityUpdated:         func() Event { return &ActivityUpdatedEvent{} },
	TypeActivityDeleted:         func() Event { return &ActivityDeletedEvent{} },
	TypeActivityReactionAdded:   func() Event { return &ActivityReactionAddedEvent{} },
	TypeActivityReactionDeleted: func() Event { return &ActivityReactionDeletedEvent{} },
	TypeCommentAdded:            func() Event { return &CommentAddedEvent{} },
	TypeCommentUpdated:          func() Event { return &CommentUpdatedEvent{} },
	TypeCommentDeleted:          func() Event { return &CommentDeletedEvent{} },
	TypeFollowCreated:           func() Event { return &FollowCreatedEvent{} },
	TypeFollowDeleted:           func() Event { return &FollowDeletedEvent{} },
	TypeBookmarkAdded:           func() Event { return &BookmarkAddedEvent{} },
	TypeBookmarkDeleted:         func() Event { return &BookmarkDeletedEvent{} },
	TypePollVoteCasted:          func() Event { return &PollVoteCastedEvent{} },
	TypePollClosed:              func() Event { return &PollClosedEvent{} },
}

// Handshake frames the backend does not declare alongside the catalogue.
var connectionTypes = map[string]func() Event{
	TypeConnectionOK:    func() Event { return &ConnectedEvent{} },
	TypeConnectionError: func() Event { return &ConnectionErrorEvent{} },
}

// Decode parses a frame into an Event.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	eventType := gjson.GetBytes(data, "type").String()

	newEvent, ok := catalogue[eventType]
	if !ok {
		newEvent, ok = connectionTypes[eventType]
	}
	if !ok {
		if eventType == "" && gjson.GetBytes(data, "error").Exists() {
			return decodeError(data, nil)
		}
		return &UnknownEvent{EventType: eventType, Raw: json.RawMessage(data)}, nil
	}

	ev := newEvent()
	if err := json.Unmarshal(data, ev); err != nil {
		return decodeError(data, err)
	}
	return ev, nil
}

func decodeError(data []byte, cause error) (Event, error) {
	apiErr, err := api.DecodeError(data)
	if err != nil {
		if cause != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecodable, cause)
		}
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return &ErrorEvent{Err: apiErr}, nil
}

// IsHealthCheck reports whether ev is a server health frame.
func IsHealthCheck(ev Event) bool {
	_, ok := ev.(*HealthCheckEvent)
	return ok
}
