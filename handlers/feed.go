package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/railnet/railnet/internal/feed"
)

// FeedHandler serves the day's schedules as a GTFS-Realtime feed
type FeedHandler struct {
	store feed.Store
	loc   *time.Location
	now   func() time.Time
}

// NewFeedHandler creates a new handler. Without a date parameter the feed
// covers today in loc.
func NewFeedHandler(store feed.Store, loc *time.Location) *FeedHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &FeedHandler{store: store, loc: loc, now: time.Now}
}

// GetScheduleFeed handles GET /api/feed/schedules.pb?date=YYYY-MM-DD[&format=text]
func (h *FeedHandler) GetScheduleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.now()
	date := q.Get("date")
	if date == "" {
		date = now.In(h.loc).Format("2006-01-02")
	}
	humanReadable := q.Get("format") == "text"

	schedules, err := feed.SchedulesOn(r.Context(), h.store, date)
	if err != nil {
		writeError(w, err, "Failed to load schedules for feed")
		return
	}

	var buf bytes.Buffer
	if err := feed.Write(&buf, feed.Build(schedules, now), humanReadable); err != nil {
		writeError(w, err, "Failed to encode feed")
		return
	}

	if humanReadable {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/x-protobuf")
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
