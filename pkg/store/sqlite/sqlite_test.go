package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type wordRow struct {
	total, start, end int64
	class             string
}

func readWord(t *testing.T, s *SQLiteStore, token string) wordRow {
	t.Helper()
	var r wordRow
	err := s.DB().QueryRow(`SELECT total_count, start_count, end_count, class FROM word WHERE word_token = ?`, token).
		Scan(&r.total, &r.start, &r.end, &r.class)
	require.NoError(t, err, token)
	return r
}

func TestSchemaCreated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.SchemaVersion, v)

	for _, table := range []string{"files", "word", "word_follow", "meta"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.EnsureFile(context.Background(), "/corpus/a.txt")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	again, err := s.EnsureFile(context.Background(), "/corpus/a.txt")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec(`UPDATE meta SET value = '99' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)

	_, err = OpenReadOnly(path)
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}

func TestEnsureFile(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	a, err := s.EnsureFile(ctx, "/a.txt")
	require.NoError(t, err)
	b, err := s.EnsureFile(ctx, "/b.txt")
	require.NoError(t, err)
	a2, err := s.EnsureFile(ctx, "/a.txt")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, a2)

	var count int64
	var date string
	require.NoError(t, s.DB().QueryRow(`SELECT word_count, date_imported FROM files WHERE file_id = ?`, a).Scan(&count, &date))
	assert.Equal(t, int64(0), count)
	assert.Equal(t, "2024-03-09", date)
}

func TestUpsertWordsAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	apply := func(deltas ...model.WordDelta) {
		require.NoError(t, s.BeginBatch(ctx))
		require.NoError(t, s.UpsertWords(ctx, deltas))
		require.NoError(t, s.CommitBatch())
	}

	apply(
		model.WordDelta{Token: "hello", Total: 2, Begin: 2, Class: model.ClassAlpha},
		model.WordDelta{Token: "world", Total: 2, End: 2, Class: model.ClassAlpha},
	)
	apply(
		model.WordDelta{Token: "hello", Total: 1, End: 1, Class: model.ClassAlpha},
		model.WordDelta{Token: "odd", Total: 1, Class: "weird"},
	)

	assert.Equal(t, wordRow{3, 2, 1, "alpha"}, readWord(t, s, "hello"))
	assert.Equal(t, wordRow{2, 0, 2, "alpha"}, readWord(t, s, "world"))
	assert.Equal(t, wordRow{1, 0, 0, "misc"}, readWord(t, s, "odd"))
}

func TestFollowersAccumulate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginBatch(ctx))
	require.NoError(t, s.UpsertWords(ctx, []model.WordDelta{
		{Token: "a", Total: 1, Class: model.ClassAlpha},
		{Token: "b", Total: 1, Class: model.ClassAlpha},
	}))
	ids, err := s.ResolveIDs(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	deltas := []model.FollowerDelta{
		{FromID: ids["a"], ToID: ids["b"], Count: 2, Resolved: true},
		{Count: 5},
	}
	require.NoError(t, s.UpsertFollowers(ctx, deltas))
	require.NoError(t, s.UpsertFollowers(ctx, deltas))
	require.NoError(t, s.CommitBatch())

	var count int64
	require.NoError(t, s.DB().QueryRow(`SELECT total_count FROM word_follow WHERE from_word_id = ? AND to_word_id = ?`,
		ids["a"], ids["b"]).Scan(&count))
	assert.Equal(t, int64(4), count)

	var rows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM word_follow`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestRollbackDiscardsBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginBatch(ctx))
	require.NoError(t, s.UpsertWords(ctx, []model.WordDelta{{Token: "gone", Total: 1, Class: model.ClassAlpha}}))
	require.NoError(t, s.RollbackBatch())
	require.NoError(t, s.RollbackBatch())

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM word`).Scan(&n))
	assert.Zero(t, n)
}

func TestAddFileWordCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.EnsureFile(ctx, "/f.txt")
	require.NoError(t, err)

	require.NoError(t, s.BeginBatch(ctx))
	require.NoError(t, s.AddFileWordCount(ctx, id, 9))
	require.NoError(t, s.AddFileWordCount(ctx, id, 9))
	assert.ErrorIs(t, s.AddFileWordCount(ctx, id+100, 1), store.ErrNotFound)
	require.NoError(t, s.CommitBatch())

	var count int64
	require.NoError(t, s.DB().QueryRow(`SELECT word_count FROM files WHERE file_id = ?`, id).Scan(&count))
	assert.Equal(t, int64(18), count)
}

func TestOperationsRequireBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpsertWords(ctx, []model.WordDelta{{Token: "x", Total: 1}}), store.ErrNoBatch)
	_, err := s.ResolveIDs(ctx, []string{"x"})
	assert.ErrorIs(t, err, store.ErrNoBatch)
	assert.ErrorIs(t, s.AddFileWordCount(ctx, 1, 1), store.ErrNoBatch)
	assert.ErrorIs(t, s.CommitBatch(), store.ErrNoBatch)

	require.NoError(t, s.BeginBatch(ctx))
	assert.Error(t, s.BeginBatch(ctx))
	require.NoError(t, s.RollbackBatch())
}

func TestLockContentionIsTransient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	first, err := New(Config{Path: path})
	require.NoError(t, err)
	defer first.Close()
	second, err := New(Config{Path: path, BusyTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer second.Close()

	ctx := context.Background()
	require.NoError(t, first.BeginBatch(ctx))

	err = second.BeginBatch(ctx)
	require.Error(t, err)
	assert.True(t, store.IsTransient(err), "got %v", err)

	require.NoError(t, first.CommitBatch())
	require.NoError(t, second.BeginBatch(ctx))
	require.NoError(t, second.RollbackBatch())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?,?)", placeholders(1, 2))
	assert.Equal(t, "(?,?,?),(?,?,?)", placeholders(2, 3))
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(Config{Path: "/tmp/x.db", BusyTimeout: 5 * time.Second})
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.NotContains(t, dsn, "mode=ro")

	ro := buildDSN(Config{Path: "/tmp/x.db", ReadOnly: true, BusyTimeout: time.Second})
	assert.Contains(t, ro, "mode=ro")
	assert.NotContains(t, ro, "_txlock")
}
