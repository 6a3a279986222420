package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/OuterWinnie/Goodreads-Bot/internal/config"
)

// TimeFormat is the textual layout of LastReviewTS.
const TimeFormat = "2006-01-02 15:04:05"

// UserID identifies a feed user. Persisted as a JSON number when it is a canonical
// integer and as a string otherwise.
type UserID string

func (id UserID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a number or string: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Entry is the persisted freshness marker of one user.
type Entry struct {
	ID           UserID `json:"id"`
	LastReviewTS string `json:"last_review_ts"`
}

// Table is the whole persisted document.
type Table struct {
	Users []Entry `json:"users"`
}

// Find returns the index of the entry for id.
func (t Table) Find(id UserID) (int, bool) {
	for i, u := range t.Users {
		if u.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Store reads and writes the state table. Access is single writer; callers load
// before every mutation.
type Store interface {
	// Load treats an absent, empty or malformed table as empty and logs it. Any
	// other failure is returned, so callers must not overwrite the table.
	Load(ctx context.Context) (Table, error)
	Save(ctx context.Context, t Table) error
	Close() error
}

// Open builds the store selected by cfg.StateBackend.
func Open(ctx context.Context, cfg config.Config, logger *log.Logger) (Store, error) {
	switch cfg.StateBackend {
	case "", "file":
		return NewFileStore(cfg.StatePath, logger), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.StatePath, logger)
	case "mysql":
		return NewMySQLStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
