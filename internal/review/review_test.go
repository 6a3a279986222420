package review

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnlyNew(t *testing.T) {
	records := []Record{{Title: "a", IsNew: true}, {Title: "b"}, {Title: "c", IsNew: true}}
	got := OnlyNew(records)
	require.Equal(t, []Record{{Title: "a", IsNew: true}, {Title: "c", IsNew: true}}, got)
	require.Empty(t, OnlyNew(nil))
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "rating", Rating.String())
	require.Equal(t, "review", Review.String())
	require.Equal(t, "unknown", EventKind(7).String())
}
