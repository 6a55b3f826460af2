package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidFeedID is returned when a feed identifier is not "group:id".
var ErrInvalidFeedID = errors.New("invalid feed id")

// FeedID identifies a feed by group and id, written "group:id".
type FeedID struct {
	Group string
	ID    string
}

// ParseFeedID parses a "group:id" string.
func ParseFeedID(s string) (FeedID, error) {
	group, id, ok := strings.Cut(s, ":")
	if !ok || group == "" || id == "" {
		return FeedID{}, fmt.Errorf("%w: %q", ErrInvalidFeedID, s)
	}
	return FeedID{Group: group, ID: id}, nil
}

// String returns the "group:id" form.
func (f FeedID) String() string {
	return f.Group + ":" + f.ID
}

// MarshalText implements encoding.TextMarshaler.
func (f FeedID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FeedID) UnmarshalText(b []byte) error {
	parsed, err := ParseFeedID(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// UserDetails is the profile the client sends with the auth handshake.
type UserDetails struct {
	ID        string         `json:"id"`
	Image     string         `json:"image,omitempty"`
	Invisible *bool          `json:"invisible,omitempty"`
	Language  string         `json:"language,omitempty"`
	Name      string         `json:"name,omitempty"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// User is a user as embedded in other entities.
type User struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Image  string         `json:"image,omitempty"`
	Role   string         `json:"role,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
}

// OwnUser is the authenticated user's snapshot returned on connect.
type OwnUser struct {
	User
	Language         string    `json:"language,omitempty"`
	Invisible        bool      `json:"invisible,omitempty"`
	TotalUnreadCount int       `json:"total_unread_count,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Activity is a single entry posted to one or more feeds.
type Activity struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Text          string         `json:"text,omitempty"`
	Feeds         []string       `json:"feeds,omitempty"`
	User          User           `json:"user"`
	CommentCount  int            `json:"comment_count"`
	ReactionCount int            `json:"reaction_count"`
	BookmarkCount int            `json:"bookmark_count"`
	Poll          *Poll          `json:"poll,omitempty"`
	Custom        map[string]any `json:"custom,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Comment is a reply to an activity or another comment.
type Comment struct {
	ID         string    `json:"id"`
	ObjectID   string    `json:"object_id"`
	ObjectType string    `json:"object_type"`
	ParentID   string    `json:"parent_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	User       User      `json:"user"`
	ReplyCount int       `json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Reaction is a typed reaction (like, love, ...) on an activity or comment.
type Reaction struct {
	ActivityID string         `json:"activity_id"`
	CommentID  string         `json:"comment_id,omitempty"`
	Type       string         `json:"type"`
	User       User           `json:"user"`
	Custom     map[string]any `json:"custom,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Follow links a source feed to a target feed.
type Follow struct {
	SourceFeed string    `json:"source_feed"`
	TargetFeed string    `json:"target_feed"`
	Status     string    `json:"status"` // "accepted", "pending", "rejected"
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Bookmark saves an activity into a user's folder.
type Bookmark struct {
	ActivityID string    `json:"activity_id"`
	FolderID   string    `json:"folder_id,omitempty"`
	User       User      `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
}

// Poll is a poll attached to an activity.
type Poll struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Options         []PollOption   `json:"options"`
	VoteCount       int            `json:"vote_count"`
	VoteCountsByOpt map[string]int `json:"vote_counts_by_option,omitempty"`
	IsClosed        bool           `json:"is_closed"`
	CreatedAt       time.Time      `json:"created_at"`
}

// PollOption is one choice in a poll.
type PollOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PollVote is a single vote on a poll option.
type PollVote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
