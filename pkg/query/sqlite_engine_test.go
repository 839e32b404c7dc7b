package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Zerofisher/wordchain/pkg/ingest"
	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/store"
	"github.com/Zerofisher/wordchain/pkg/store/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const corpus = "Hello world! This is a test.\nHello again, world!\nHello world.\nUse foo-bar now.\n"

// newEngine ingests text into a fresh database and reopens it read-only.
func newEngine(t *testing.T, text string) *SQLiteEngine {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "wordchain.db")

	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	if text != "" {
		src := filepath.Join(dir, "corpus.txt")
		require.NoError(t, os.WriteFile(src, []byte(text), 0644))
		_, err = ingest.IngestFiles(context.Background(), st, []string{src}, zaptest.NewLogger(t))
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	e, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"", OrderDesc, false},
		{"desc", OrderDesc, false},
		{" ASC ", OrderAsc, false},
		{"sideways", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}

func TestWordID(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	id, err := e.WordID(ctx, "hello")
	require.NoError(t, err)
	assert.Positive(t, id)

	// Lookups are normalized.
	id2, err := e.WordID(ctx, `"HELLO,`)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	_, err = e.WordID(ctx, "zebra")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFollowers(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	desc, err := e.Followers(ctx, "hello", OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"world", "again"}, desc)

	asc, err := e.Followers(ctx, "Hello", OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"again", "world"}, asc)

	none, err := e.Followers(ctx, "test", OrderDesc)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = e.Followers(ctx, "zebra", OrderDesc)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFollowersWithCounts(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	got, err := e.FollowersWithCounts(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []model.FollowerCount{
		{Token: "world", Count: 2},
		{Token: "again", Count: 1},
	}, got)

	none, err := e.FollowersWithCounts(ctx, "now")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = e.FollowersWithCounts(ctx, "zebra")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEndCounts(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	maxEnd, err := e.MaxEndCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxEnd)

	n, err := e.EndCount(ctx, "World!")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = e.EndCount(ctx, "hello")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.EndCount(ctx, "zebra")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmptyDatabase(t *testing.T) {
	e := newEngine(t, "")
	ctx := context.Background()

	maxEnd, err := e.MaxEndCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxEnd)

	tokens, err := e.AllTokens(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)

	ov, err := e.GetOverview(ctx)
	require.NoError(t, err)
	assert.Zero(t, ov.Words)
	assert.Zero(t, ov.AvgFollowers)
	assert.Equal(t, store.SchemaVersion, ov.SchemaVersion)
}

func TestAllTokens(t *testing.T) {
	e := newEngine(t, corpus)

	got, err := e.AllTokens(context.Background())
	require.NoError(t, err)
	want := []string{"a", "again", "hello", "is", "now", "test", "this", "use", "world"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AllTokens mismatch (-want +got):\n%s", diff)
	}
}

func TestGetWord(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	w, err := e.GetWord(ctx, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", w.Token)
	assert.Equal(t, int64(3), w.Total)
	assert.Equal(t, int64(3), w.Start)
	assert.Zero(t, w.End)
	assert.Equal(t, model.ClassAlpha, w.Class)

	// Misc tokens never reach the word table.
	_, err = e.GetWord(ctx, "foo-bar")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.GetWord(ctx, "zebra")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetWords(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	tokens := func(ws []*model.Word) []string {
		out := make([]string, len(ws))
		for i, w := range ws {
			out[i] = w.Token
		}
		return out
	}

	tests := []struct {
		name   string
		filter WordFilter
		want   []string
	}{
		{"top by total", WordFilter{Limit: 2}, []string{"hello", "world"}},
		{"offset", WordFilter{Limit: 1, Offset: 1}, []string{"world"}},
		{"prefix", WordFilter{Prefix: "TH"}, []string{"this"}},
		{"misc only", WordFilter{Class: model.ClassMisc}, []string{}},
		{"min total", WordFilter{MinTotal: 2, SortBy: "token", SortOrder: "asc"}, []string{"hello", "world"}},
		{"ends", WordFilter{SortBy: "end", Limit: 3}, []string{"world", "now", "test"}},
		{"offset without limit", WordFilter{SortBy: "token", SortOrder: "asc", Offset: 7}, []string{"use", "world"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := e.GetWords(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tokens(ws))
		})
	}

	n, err := e.GetWordCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestGetFilesAndEdges(t *testing.T) {
	e := newEngine(t, corpus)
	ctx := context.Background()

	files, err := e.GetFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "corpus.txt", filepath.Base(files[0].Path))
	assert.False(t, files[0].DateImported.IsZero())

	edges, err := e.GetTopEdges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, &Edge{From: "hello", To: "world", Count: 2}, edges[0])
}

func TestGetOverview(t *testing.T) {
	e := newEngine(t, corpus)

	ov, err := e.GetOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ov.Files)
	assert.Equal(t, 9, ov.Words)
	assert.Equal(t, 9, ov.AlphaWords)
	assert.Equal(t, 6, ov.Edges)
	assert.InDelta(t, 1.2, ov.AvgFollowers, 1e-9)
	assert.Equal(t, int64(3), ov.MaxEndCount)
	assert.Equal(t, int64(5), ov.SentenceStarts)
	assert.Equal(t, int64(5), ov.SentenceEnds)
	assert.Equal(t, store.SchemaVersion, ov.SchemaVersion)
	require.NotEmpty(t, ov.TopWords)
	assert.Equal(t, "hello", ov.TopWords[0].Token)
	require.NotEmpty(t, ov.TopEdges)
	assert.Equal(t, "hello", ov.TopEdges[0].From)
}

func TestGeneratorContractSingleConnection(t *testing.T) {
	e := newEngine(t, corpus)
	e.store.DB().SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Each call returns its connection before the next one starts.
	_, err := e.WordID(ctx, "hello")
	require.NoError(t, err)
	followers, err := e.Followers(ctx, "hello", OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"world", "again"}, followers)
	fcs, err := e.FollowersWithCounts(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, fcs, 2)
	n, err := e.MaxEndCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = e.EndCount(ctx, "world")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	tokens, err := e.AllTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 9)
	_, err = e.GetWord(ctx, "zebra")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
