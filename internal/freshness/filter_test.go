package freshness

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OuterWinnie/Goodreads-Bot/internal/state"
)

// countingStore wraps a real file store and counts saves.
type countingStore struct {
	*state.FileStore
	saves   int
	failing bool
}

func (c *countingStore) Save(ctx context.Context, t state.Table) error {
	c.saves++
	if c.failing {
		return errors.New("disk full")
	}
	return c.FileStore.Save(ctx, t)
}

func newFilter(t *testing.T, seed state.Table) (*Filter, *countingStore) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	fs := state.NewFileStore(filepath.Join(t.TempDir(), "users.json"), logger)
	if seed.Users != nil {
		require.NoError(t, fs.Save(context.Background(), seed))
	}
	store := &countingStore{FileStore: fs}
	f, err := NewFilter(store, "Europe/Madrid", logger, true)
	require.NoError(t, err)
	return f, store
}

func loadTable(t *testing.T, store state.Store) state.Table {
	t.Helper()
	table, err := store.Load(context.Background())
	require.NoError(t, err)
	return table
}

func TestCheckNewerReview(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{Users: []state.Entry{{ID: "42", LastReviewTS: "2024-01-01 00:00:00"}}})

	published := time.Date(2024, 6, 1, 12, 0, 0, 0, f.Location())
	isNew, err := f.Check(ctx, "42", published)
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, 1, store.saves)
	require.Equal(t, "2024-06-01 12:00:00", loadTable(t, store).Users[0].LastReviewTS)

	// same candidate again is old and saves nothing
	isNew, err = f.Check(ctx, "42", published)
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, 1, store.saves)
}

func TestCheckNormalizesTimezone(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{Users: []state.Entry{{ID: "42", LastReviewTS: "2024-01-01 00:00:00"}}})

	published, err := ParsePublished("Sat, 01 Jun 2024 10:00:00 +0000")
	require.NoError(t, err)
	isNew, err := f.Check(ctx, "42", published)
	require.NoError(t, err)
	require.True(t, isNew)
	// CEST is UTC+2
	require.Equal(t, "2024-06-01 12:00:00", loadTable(t, store).Users[0].LastReviewTS)
}

func TestCheckOlderReview(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{Users: []state.Entry{{ID: "42", LastReviewTS: "2024-06-01 12:00:00"}}})

	isNew, err := f.Check(ctx, "42", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, isNew)
	require.Zero(t, store.saves)
	require.Equal(t, "2024-06-01 12:00:00", loadTable(t, store).Users[0].LastReviewTS)
}

func TestCheckFirstEncounter(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{Users: []state.Entry{{ID: "1", LastReviewTS: "2024-01-01 00:00:00"}}})

	isNew, err := f.Check(ctx, "99", time.Date(2024, 2, 1, 9, 30, 0, 0, f.Location()))
	require.NoError(t, err)
	require.True(t, isNew)

	users := loadTable(t, store).Users
	require.Len(t, users, 2)
	require.Equal(t, state.Entry{ID: "99", LastReviewTS: "2024-02-01 09:30:00"}, users[1])
}

func TestCheckUnreadableStoredTimestamp(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{Users: []state.Entry{{ID: "42", LastReviewTS: "yesterday"}}})

	isNew, err := f.Check(ctx, "42", time.Date(2024, 2, 1, 9, 30, 0, 0, f.Location()))
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, "2024-02-01 09:30:00", loadTable(t, store).Users[0].LastReviewTS)
}

func TestCheckSaveFailure(t *testing.T) {
	ctx := context.Background()
	f, store := newFilter(t, state.Table{})
	store.failing = true

	isNew, err := f.Check(ctx, "42", time.Now())
	require.False(t, isNew)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, store.saves)

	// nothing was persisted, so the same review stays unsent and is retried
	store.failing = false
	isNew, err = f.Check(ctx, "42", time.Now())
	require.NoError(t, err)
	require.True(t, isNew)
}

func TestCheckUnreadableStateIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	// a directory cannot be read as a file
	dir := t.TempDir()
	store := &countingStore{FileStore: state.NewFileStore(dir, logger)}
	f, err := NewFilter(store, "Europe/Madrid", logger, false)
	require.NoError(t, err)

	isNew, err := f.Check(ctx, "42", time.Now())
	require.Error(t, err)
	require.False(t, isNew)
	require.Zero(t, store.saves)
}

func TestNewFilterBadTimezone(t *testing.T) {
	_, err := NewFilter(nil, "Mars/Olympus", log.New(io.Discard, "", 0), false)
	require.Error(t, err)
}

func TestParsePublished(t *testing.T) {
	got, err := ParsePublished("Sat, 01 Jun 2024 12:00:00 +0200")
	require.NoError(t, err)
	require.Equal(t, int64(1717236000), got.Unix())

	_, err = ParsePublished("2024-06-01")
	require.Error(t, err)
}
