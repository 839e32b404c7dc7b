package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Zerofisher/wordchain/export"
	"github.com/Zerofisher/wordchain/internal/config"
	"github.com/Zerofisher/wordchain/pkg/ingest"
	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const corpus = "Hello world! This is a test.\nHello again, world!\nHello world.\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Name = filepath.Join(t.TempDir(), "db", "wordchain.db")
	cfg.Ingest.TokenizerConcurrency = 2
	return cfg
}

func ingestCorpus(t *testing.T, cfg *config.Config) *ingest.Result {
	t.Helper()
	src := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(src, []byte(corpus), 0644))

	res, err := RunIngest(context.Background(), IngestConfig{Config: cfg, Paths: []string{src}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return res
}

func openEngine(t *testing.T, cfg *config.Config) *query.SQLiteEngine {
	t.Helper()
	e, err := OpenEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestStoreConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.User, cfg.Database.Pass = "admin", "secret"
	cfg.Database.LockWaitTimeoutSec = 7

	sc := StoreConfig(cfg, true)
	assert.Equal(t, "wordchain.db", sc.Path)
	assert.True(t, sc.ReadOnly)
	assert.Equal(t, "7s", sc.BusyTimeout.String())
	assert.Equal(t, "admin", sc.User)
	assert.Equal(t, "secret", sc.Pass)
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tokenizer.SingleBatch = true
	cfg.Writer.IDResolveChunk = 42

	pc := PipelineConfig(cfg, []string{"a.txt"}, nil)
	assert.Equal(t, []string{"a.txt"}, pc.Paths)
	assert.Equal(t, 64, pc.QueueCapacity)
	assert.True(t, pc.Tokenizer.SingleBatch)
	assert.Equal(t, 42, pc.Writer.ResolveChunk)
	assert.Equal(t, 5, pc.Writer.RetryMaxBatch)
}

func TestRunIngest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Host = "db.internal"

	res := ingestCorpus(t, cfg)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, int64(11), res.Words)

	e := openEngine(t, cfg)
	n, err := e.EndCount(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRunIngestBadDatabase(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	cfg.Database.Name = filepath.Join(blocker, "wordchain.db")

	res, err := RunIngest(context.Background(), IngestConfig{Config: cfg}, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestOpenEngineMissing(t *testing.T) {
	_, err := OpenEngine(testConfig(t))
	assert.Error(t, err)
}

func TestRunExport(t *testing.T) {
	cfg := testConfig(t)
	ingestCorpus(t, cfg)
	e := openEngine(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  ExportConfig
		want string
	}{
		{
			name: "limit",
			cfg:  ExportConfig{Words: query.WordFilter{Limit: 2}, Format: export.FormatFields, Fields: []string{"word.token"}},
			want: "hello\nworld\n",
		},
		{
			name: "filter then limit",
			cfg: ExportConfig{
				Words:         query.WordFilter{Limit: 1, SortBy: "token", SortOrder: "asc"},
				DisplayFilter: `end > 0`,
				Format:        export.FormatFields,
				Fields:        []string{"word.token", "word.end"},
			},
			want: "test\t1\n",
		},
		{
			name: "filter with offset",
			cfg: ExportConfig{
				Words:         query.WordFilter{Offset: 1, SortBy: "token", SortOrder: "asc"},
				DisplayFilter: `end > 0`,
				Format:        export.FormatCSV,
				Fields:        []string{"word.token"},
			},
			want: "word.token\nworld\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := RunExport(ctx, &buf, e, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}

	_, err := RunExport(ctx, io.Discard, e, ExportConfig{DisplayFilter: "total >"})
	assert.Error(t, err)
}

func TestRunFollowers(t *testing.T) {
	cfg := testConfig(t)
	ingestCorpus(t, cfg)
	e := openEngine(t, cfg)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := RunFollowers(ctx, &buf, e, "Hello", query.OrderAsc, ExportConfig{Format: export.FormatFields})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello\tagain\t1\nhello\tworld\t2\n", buf.String())

	_, err = RunFollowers(ctx, io.Discard, e, "zebra", query.OrderDesc, ExportConfig{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestValidateFields(t *testing.T) {
	assert.Error(t, ValidateFields(export.FormatFields, nil))
	assert.NoError(t, ValidateFields(export.FormatFields, []string{"word.token"}))
	assert.NoError(t, ValidateFields(export.FormatJSON, nil))
}

func TestServeMetrics(t *testing.T) {
	addr, stop, err := ServeMetrics("127.0.0.1:0", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer stop()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "wordchain_writer_retries_total"))
}

func TestLoadStats(t *testing.T) {
	cfg := testConfig(t)
	ingestCorpus(t, cfg)
	e := openEngine(t, cfg)
	ctx := context.Background()

	mgr, err := LoadStats(ctx, e, "", true)
	require.NoError(t, err)
	fan := mgr.Fanouts()
	require.NotEmpty(t, fan)
	assert.Equal(t, "hello", fan[0].Token)
	assert.Equal(t, 2, fan[0].Followers)
	assert.Equal(t, "world", fan[0].Top)

	mgr, err = LoadStats(ctx, e, `token == "hello"`, false)
	require.NoError(t, err)
	assert.Empty(t, mgr.Fanouts())
	require.Len(t, mgr.FrequencyBuckets(), 1)
	assert.Equal(t, int64(3), mgr.FrequencyBuckets()[0].Tokens)

	_, err = LoadStats(ctx, e, "total >", false)
	assert.Error(t, err)
}
