package drafts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), srv
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := store.Get(ctx, StageRevision, 7)
			require.NoError(t, err)
			require.False(t, ok)

			g := grid.Grid{{Color: "Blue", Size: "M"}: 4}
			require.NoError(t, store.Put(ctx, StageRevision, 7, g))

			got, ok, err := store.Get(ctx, StageRevision, 7)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, 4, grid.Quantity(got, "Blue", "M"))

			_, ok, err = store.Get(ctx, StagePacking, 7)
			require.NoError(t, err)
			require.False(t, ok, "stages are independent")

			require.NoError(t, store.Clear(ctx, StageRevision, 7))
			_, ok, err = store.Get(ctx, StageRevision, 7)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.Clear(ctx, StageRevision, 7), "clearing twice is harmless")
		})
	}
}

func TestMemoryStoreCopiesGrids(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	g := grid.Grid{{Color: "Blue", Size: "M"}: 4}
	require.NoError(t, store.Put(ctx, StagePacking, 1, g))
	g[grid.Cell{Color: "Blue", Size: "M"}] = 99

	got, _, err := store.Get(ctx, StagePacking, 1)
	require.NoError(t, err)
	require.Equal(t, 4, grid.Quantity(got, "Blue", "M"))
}

func TestRedisStoreExpiresDrafts(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, StageReturn, 3, grid.Grid{{Color: "Red", Size: "P"}: 1}))
	require.True(t, srv.Exists(Key(StageReturn, 3)))

	srv.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, StageReturn, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreDropsCorruptDraft(t *testing.T) {
	store, srv := newRedisStore(t)
	require.NoError(t, srv.Set(Key(StageRevision, 9), "{not json"))

	_, ok, err := store.Get(context.Background(), StageRevision, 9)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, srv.Exists(Key(StageRevision, 9)))
}

func TestParseStage(t *testing.T) {
	stage, err := ParseStage("packing")
	require.NoError(t, err)
	require.Equal(t, StagePacking, stage)

	_, err = ParseStage("cutting")
	require.ErrorIs(t, err, ErrUnknownStage)
}
