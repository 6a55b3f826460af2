package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/feeds-realtime/internal/journal"
)

// Status is the body served on /health.
type Status struct {
	Status       string           `json:"status"`
	State        string           `json:"state"`
	ConnectionID string           `json:"connection_id,omitempty"`
	Network      bool             `json:"network"`
	Foreground   bool             `json:"foreground"`
	Watched      []string         `json:"watched"`
	Failures     int              `json:"consecutive_failures"`
	Journal      *journal.Metrics `json:"journal,omitempty"`
	Database     string           `json:"database,omitempty"`
}

// Snapshot collects the client's current status.
func (c *Client) Snapshot(ctx context.Context) Status {
	st := c.Socket.State()
	s := Status{
		Status:       "healthy",
		State:        st.String(),
		ConnectionID: st.ConnectionID,
		Network:      c.Network.IsConnected(),
		Foreground:   c.Lifecycle.IsResumed(),
		Failures:     c.Recovery.Strategy().ConsecutiveFailures(),
	}
	for _, fid := range c.Watch.Watched() {
		s.Watched = append(s.Watched, fid.String())
	}
	if !st.IsConnected() {
		s.Status = "degraded"
	}

	if c.Journal != nil {
		stats := c.Journal.Stats()
		s.Journal = &stats
		if err := c.Ping(ctx); err != nil {
			s.Status = "unhealthy"
			s.Database = err.Error()
		} else {
			s.Database = "connected"
		}
	}
	return s
}

// StatusHandler serves the client status as JSON.
func StatusHandler(c *Client) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := c.Snapshot(ctx)

		w.Header().Set("Content-Type", "application/json")
		if status.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	return mux
}
