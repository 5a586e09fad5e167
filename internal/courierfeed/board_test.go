package courierfeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/http/handlers"
)

func TestBoard_ReplaceIsIdempotentAndOrdered(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	snap := []handlers.DeliveryResponse{
		{ID: "b", CreatedAt: t0},
		{ID: "c", CreatedAt: t0.Add(time.Minute)},
		{ID: "a", CreatedAt: t0},
	}

	b := NewBoard()
	b.Replace(snap)
	first := b.Items()
	b.Replace(snap)

	require.Equal(t, first, b.Items())
	require.Equal(t, []string{"c", "a", "b"}, ids(b.Items()))
	require.EqualValues(t, 2, b.Version())
}

func TestBoard_ReplaceDropsMissingRows(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Replace([]handlers.DeliveryResponse{{ID: "a"}, {ID: "b"}})
	b.Replace([]handlers.DeliveryResponse{{ID: "b", Status: "accepted"}})

	_, ok := b.Get("a")
	require.False(t, ok)
	got, ok := b.Get("b")
	require.True(t, ok)
	require.Equal(t, "accepted", got.Status)
}

func TestBoard_UpsertAndWithAction(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Replace([]handlers.DeliveryResponse{
		{ID: "a", Actions: []string{"accept"}},
		{ID: "b", Actions: []string{}},
	})
	require.Equal(t, []string{"a"}, ids(b.WithAction("accept")))

	b.Upsert(handlers.DeliveryResponse{ID: "a", Status: "accepted", Actions: []string{"pick_up"}})
	require.Empty(t, b.WithAction("accept"))
	require.Equal(t, []string{"a"}, ids(b.WithAction("pick_up")))
	require.Equal(t, 2, b.Len())
}

func ids(items []handlers.DeliveryResponse) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
