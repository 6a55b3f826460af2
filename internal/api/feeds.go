package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/feeds-realtime/internal/model"
)

// GetOrCreateFeedRequest is the body of POST /feeds/feed_groups/{group}/feeds/{id}.
type GetOrCreateFeedRequest struct {
	Watch        bool   `json:"watch"`
	ConnectionID string `json:"connection_id,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// GetOrCreateFeedResponse is the subset of the feed response the client reads.
type GetOrCreateFeedResponse struct {
	Duration   string           `json:"duration"`
	Created    bool             `json:"created"`
	Activities []model.Activity `json:"activities"`
	Feed       struct {
		ID            string `json:"id"`
		GroupID       string `json:"group_id"`
		Feed          string `json:"feed"`
		FollowerCount int    `json:"follower_count"`
	} `json:"feed"`
}

// GetOrCreateFeed fetches (or lazily creates) a feed. With Watch set and a
// ConnectionID, the backend starts delivering the feed's events on that socket.
func (c *Client) GetOrCreateFeed(ctx context.Context, fid model.FeedID, req GetOrCreateFeedRequest) (*GetOrCreateFeedResponse, error) {
	path := fmt.Sprintf("/feeds/feed_groups/%s/feeds/%s", url.PathEscape(fid.Group), url.PathEscape(fid.ID))

	var resp GetOrCreateFeedResponse
	if err := c.post(ctx, path, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("get or create feed %s: %w", fid, err)
	}
	return &resp, nil
}

// WatchFeed subscribes connectionID to live updates of fid.
func (c *Client) WatchFeed(ctx context.Context, fid model.FeedID, connectionID string) error {
	_, err := c.GetOrCreateFeed(ctx, fid, GetOrCreateFeedRequest{
		Watch:        true,
		ConnectionID: connectionID,
		Limit:        1,
	})
	return err
}
