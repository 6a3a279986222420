// Package freshness decides whether a review is newer than the last one seen for its user.
package freshness

import (
	"context"
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/OuterWinnie/Goodreads-Bot/internal/state"
)

// PublishedLayout is the feed's pubDate layout.
const PublishedLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// ParsePublished parses a raw pubDate value.
func ParsePublished(raw string) (time.Time, error) {
	t, err := time.Parse(PublishedLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse published %q: %w", raw, err)
	}
	return t, nil
}

// Filter compares candidates against the stored last_review_ts of each user.
type Filter struct {
	store  state.Store
	loc    *time.Location
	logger *log.Logger
	debug  bool
}

// NewFilter creates a filter normalizing timestamps to the named timezone.
func NewFilter(store state.Store, timezone string, logger *log.Logger, debug bool) (*Filter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Filter{store: store, loc: loc, logger: logger, debug: debug}, nil
}

// Location is the target timezone.
func (f *Filter) Location() *time.Location {
	return f.loc
}

// Check classifies a review published at the given instant. A newer review advances
// the stored timestamp and is saved immediately. Users without an entry are new.
// A review is only new once its timestamp is persisted: on a failed load or save
// Check reports false with the error, so the review is retried on the next poll.
func (f *Filter) Check(ctx context.Context, id state.UserID, published time.Time) (bool, error) {
	table, err := f.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load freshness for %s: %w", id, err)
	}
	candidate := published.In(f.loc)
	stamp := candidate.Format(state.TimeFormat)
	f.debugf("review datetime for %s: %s (unix %d)", id, candidate, candidate.Unix())

	i, ok := table.Find(id)
	if !ok {
		f.debugf("first review seen for %s", id)
		table.Users = append(table.Users, state.Entry{ID: id, LastReviewTS: stamp})
		return f.save(ctx, table, id)
	}

	stored, err := time.ParseInLocation(state.TimeFormat, table.Users[i].LastReviewTS, f.loc)
	if err != nil {
		f.logger.Printf("warning: unreadable last_review_ts %q for %s, replacing: %v", table.Users[i].LastReviewTS, id, err)
	} else {
		f.debugf("stored review timestamp for %s: %s (unix %d)", id, table.Users[i].LastReviewTS, stored.Unix())
		if stored.Unix() >= candidate.Unix() {
			f.debugf("old review for %s, not sending", id)
			return false, nil
		}
	}

	f.debugf("new review for %s", id)
	table.Users[i].LastReviewTS = stamp
	return f.save(ctx, table, id)
}

func (f *Filter) save(ctx context.Context, table state.Table, id state.UserID) (bool, error) {
	if err := f.store.Save(ctx, table); err != nil {
		return false, fmt.Errorf("persist freshness for %s: %w", id, err)
	}
	return true, nil
}

func (f *Filter) debugf(format string, args ...any) {
	if f.debug {
		f.logger.Printf("debug: "+format, args...)
	}
}
