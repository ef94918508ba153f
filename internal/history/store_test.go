package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/fsync/internal/log"
	"github.com/zjrosen/fsync/internal/testutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	conn := testutil.NewTestDB(t)
	require.NoError(t, Migrate(context.Background(), conn))
	return NewStore(conn, log.Discard())
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx,
		Entry{SessionID: "s1", Pair: "site", Operation: OperationUpload, Side: "remote",
			FileName: "/l/a.txt", Destination: "/r/a.txt", CreatedAt: base},
		Entry{SessionID: "s1", Pair: "site", Operation: OperationUpload, Side: "remote",
			FileName: "/l/b.txt", Error: "Permission denied", CreatedAt: base.Add(time.Second)},
		Entry{SessionID: "s1", Pair: "docs", Operation: OperationRemove, Side: "local",
			FileName: "/l/old.txt", CreatedAt: base.Add(2 * time.Second)},
	))

	all, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "/l/old.txt", all[0].FileName, "newest first")
	require.Equal(t, "/l/a.txt", all[2].FileName)
	require.Equal(t, "/r/a.txt", all[2].Destination)
	require.Equal(t, base, all[2].CreatedAt.UTC())
	require.True(t, all[1].Failed())
	require.Equal(t, "Permission denied", all[1].Error)
	require.Empty(t, all[0].Destination)

	site, err := store.Recent(ctx, "site", 10)
	require.NoError(t, err)
	require.Len(t, site, 2)

	limited, err := store.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestStore_RecordDefaultsCreatedAt(t *testing.T) {
	store := setupStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Record(context.Background(), Entry{
		SessionID: "s", Operation: OperationDownload, FileName: "/r/a",
	}))

	entries, err := store.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fixed, entries[0].CreatedAt.UTC())
}

func TestStore_RecordNothing(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Record(context.Background()))
}

func TestStore_Summarize(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx,
		Entry{SessionID: "s", Pair: "a", Operation: OperationUpload, FileName: "1"},
		Entry{SessionID: "s", Pair: "a", Operation: OperationUpload, FileName: "2"},
		Entry{SessionID: "s", Pair: "a", Operation: OperationDownload, FileName: "3"},
		Entry{SessionID: "s", Pair: "b", Operation: OperationRemove, FileName: "4"},
		Entry{SessionID: "s", Pair: "b", Operation: OperationUpload, FileName: "5", Error: "boom"},
	))

	all, err := store.Summarize(ctx, "")
	require.NoError(t, err)
	require.Equal(t, Summary{Uploads: 2, Downloads: 1, Removals: 1, Failures: 1}, all)

	b, err := store.Summarize(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, Summary{Removals: 1, Failures: 1}, b)

	empty, err := store.Summarize(ctx, "none")
	require.NoError(t, err)
	require.Zero(t, empty)
}

func TestStore_Prune(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx,
		Entry{SessionID: "s", Operation: OperationUpload, FileName: "old", CreatedAt: now.Add(-48 * time.Hour)},
		Entry{SessionID: "s", Operation: OperationUpload, FileName: "new", CreatedAt: now},
	))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	entries, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].FileName)
}

func TestStore_RecentOrderProperty(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		_, err := store.db.Exec("DELETE FROM transfers")
		require.NoError(rt, err)

		offsets := rapid.SliceOfN(rapid.IntRange(0, 1_000_000), 1, 20).Draw(rt, "offsets")
		base := time.UnixMilli(1_700_000_000_000)
		entries := make([]Entry, len(offsets))
		for i, off := range offsets {
			entries[i] = Entry{SessionID: "s", Operation: OperationUpload, FileName: "f",
				CreatedAt: base.Add(time.Duration(off) * time.Millisecond)}
		}
		require.NoError(rt, store.Record(ctx, entries...))

		got, err := store.Recent(ctx, "", len(entries))
		require.NoError(rt, err)
		require.Len(rt, got, len(entries))
		for i := 1; i < len(got); i++ {
			require.False(rt, got[i].CreatedAt.After(got[i-1].CreatedAt), "entries must be newest first")
		}
	})
}
