package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/store"
	"github.com/Zerofisher/wordchain/pkg/store/sqlite"
	"github.com/Zerofisher/wordchain/tokenize"
)

// SQLiteEngine implements QueryEngine using SQLite storage.
type SQLiteEngine struct {
	store *sqlite.SQLiteStore
}

var _ QueryEngine = (*SQLiteEngine)(nil)

// NewSQLiteEngine creates a new SQLite-backed query engine.
func NewSQLiteEngine(store *sqlite.SQLiteStore) *SQLiteEngine {
	return &SQLiteEngine{store: store}
}

// Open opens an existing database read-only.
func Open(path string) (*SQLiteEngine, error) {
	st, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewSQLiteEngine(st), nil
}

// Close closes the underlying store.
func (e *SQLiteEngine) Close() error {
	return e.store.Close()
}

func notFound(token string) error {
	return fmt.Errorf("word %q: %w", token, store.ErrNotFound)
}

func (e *SQLiteEngine) lookupID(ctx context.Context, token string) (int64, error) {
	var id int64
	err := e.store.DB().QueryRowContext(ctx, `SELECT word_id FROM word WHERE word_token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(token)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup word: %w", err)
	}
	return id, nil
}

// ────────────────────────────────────────────────────────────────────────────────
// Generator contract
// ────────────────────────────────────────────────────────────────────────────────

// WordID returns the id of token.
func (e *SQLiteEngine) WordID(ctx context.Context, token string) (int64, error) {
	return e.lookupID(ctx, tokenize.Normalize(token))
}

// Followers returns the tokens observed right after token, ordered by edge
// count (ties by token).
func (e *SQLiteEngine) Followers(ctx context.Context, token string, order Order) ([]string, error) {
	token = tokenize.Normalize(token)
	id, err := e.lookupID(ctx, token)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT w.word_token
		FROM word_follow f JOIN word w ON w.word_id = f.to_word_id
		WHERE f.from_word_id = ?
		ORDER BY f.total_count `+order.sql()+`, w.word_token`, id)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FollowersWithCounts returns followers of token with their edge counts,
// highest count first.
func (e *SQLiteEngine) FollowersWithCounts(ctx context.Context, token string) ([]model.FollowerCount, error) {
	token = tokenize.Normalize(token)
	id, err := e.lookupID(ctx, token)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT w.word_token, f.total_count
		FROM word_follow f JOIN word w ON w.word_id = f.to_word_id
		WHERE f.from_word_id = ?
		ORDER BY f.total_count DESC, w.word_token`, id)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	out := make([]model.FollowerCount, 0)
	for rows.Next() {
		var fc model.FollowerCount
		if err := rows.Scan(&fc.Token, &fc.Count); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// MaxEndCount returns the largest end_count in the word table, 0 when empty.
func (e *SQLiteEngine) MaxEndCount(ctx context.Context) (int64, error) {
	var n int64
	err := e.store.DB().QueryRowContext(ctx, `SELECT COALESCE(MAX(end_count), 0) FROM word`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query max end count: %w", err)
	}
	return n, nil
}

// EndCount returns how often token closed a sentence.
func (e *SQLiteEngine) EndCount(ctx context.Context, token string) (int64, error) {
	token = tokenize.Normalize(token)
	var n int64
	err := e.store.DB().QueryRowContext(ctx, `SELECT end_count FROM word WHERE word_token = ?`, token).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(token)
	}
	if err != nil {
		return 0, fmt.Errorf("query end count: %w", err)
	}
	return n, nil
}

// AllTokens returns every stored token in lexicographic order.
func (e *SQLiteEngine) AllTokens(ctx context.Context) ([]string, error) {
	rows, err := e.store.DB().QueryContext(ctx, `SELECT word_token FROM word ORDER BY word_token`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ────────────────────────────────────────────────────────────────────────────────
// Words & Files
// ────────────────────────────────────────────────────────────────────────────────

const wordColumns = `word_id, word_token, total_count, start_count, end_count, class`

// GetWord retrieves a single word row.
func (e *SQLiteEngine) GetWord(ctx context.Context, token string) (*model.Word, error) {
	token = tokenize.Normalize(token)
	row := e.store.DB().QueryRowContext(ctx, `SELECT `+wordColumns+` FROM word WHERE word_token = ?`, token)
	w, err := scanWord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(token)
	}
	return w, err
}

// GetWords retrieves words with optional filtering.
func (e *SQLiteEngine) GetWords(ctx context.Context, filter WordFilter) ([]*model.Word, error) {
	query := `SELECT ` + wordColumns + ` FROM word WHERE 1=1`
	args := []any{}

	if filter.Class != "" {
		query += " AND class = ?"
		args = append(args, string(model.ParseWordClass(string(filter.Class))))
	}
	if filter.MinTotal > 0 {
		query += " AND total_count >= ?"
		args = append(args, filter.MinTotal)
	}
	if p := tokenize.Normalize(filter.Prefix); p != "" {
		query += " AND substr(word_token, 1, length(?)) = ?"
		args = append(args, p, p)
	}

	// Sorting
	sortCol := "total_count"
	switch filter.SortBy {
	case "token":
		sortCol = "word_token"
	case "start":
		sortCol = "start_count"
	case "end":
		sortCol = "end_count"
	case "id":
		sortCol = "word_id"
	}
	sortOrder := "DESC"
	if filter.SortOrder == "asc" {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, word_token ASC", sortCol, sortOrder)

	// Pagination
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()

	var words []*model.Word
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// GetWordCount returns the number of stored words.
func (e *SQLiteEngine) GetWordCount(ctx context.Context) (int, error) {
	var count int
	err := e.store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM word").Scan(&count)
	return count, err
}

// GetFiles lists ingested files in import order.
func (e *SQLiteEngine) GetFiles(ctx context.Context) ([]*model.File, error) {
	rows, err := e.store.DB().QueryContext(ctx,
		`SELECT file_id, file_path, word_count, date_imported FROM files ORDER BY file_id`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f := &model.File{}
		var date string
		if err := rows.Scan(&f.ID, &f.Path, &f.WordCount, &date); err != nil {
			return nil, err
		}
		f.DateImported, _ = time.Parse(time.DateOnly, date)
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetTopEdges returns the most frequent follower edges.
func (e *SQLiteEngine) GetTopEdges(ctx context.Context, limit int) ([]*Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT a.word_token, b.word_token, f.total_count
		FROM word_follow f
		JOIN word a ON a.word_id = f.from_word_id
		JOIN word b ON b.word_id = f.to_word_id
		ORDER BY f.total_count DESC, a.word_token, b.word_token
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		ed := &Edge{}
		if err := rows.Scan(&ed.From, &ed.To, &ed.Count); err != nil {
			return nil, err
		}
		edges = append(edges, ed)
	}
	return edges, rows.Err()
}

// ────────────────────────────────────────────────────────────────────────────────
// Statistics
// ────────────────────────────────────────────────────────────────────────────────

// GetOverview gathers table sizes, counters and top lists.
func (e *SQLiteEngine) GetOverview(ctx context.Context) (*Overview, error) {
	overview := &Overview{DBPath: e.store.Path()}

	v, err := e.store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	overview.SchemaVersion = v

	err = e.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(class = 'alpha'), 0),
		       COALESCE(SUM(total_count), 0),
		       COALESCE(SUM(start_count), 0),
		       COALESCE(SUM(end_count), 0),
		       COALESCE(MAX(end_count), 0)
		FROM word`).Scan(&overview.Words, &overview.AlphaWords, &overview.TotalTokens,
		&overview.SentenceStarts, &overview.SentenceEnds, &overview.MaxEndCount)
	if err != nil {
		return nil, fmt.Errorf("query word totals: %w", err)
	}

	err = e.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(word_count), 0) FROM files`).Scan(&overview.Files, &overview.FileWordCount)
	if err != nil {
		return nil, fmt.Errorf("query file totals: %w", err)
	}

	var sources int
	err = e.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT from_word_id) FROM word_follow`).Scan(&overview.Edges, &sources)
	if err != nil {
		return nil, fmt.Errorf("query edge totals: %w", err)
	}
	if sources > 0 {
		overview.AvgFollowers = float64(overview.Edges) / float64(sources)
	}

	overview.TopWords, err = e.GetWords(ctx, WordFilter{Limit: 5, SortBy: "total"})
	if err != nil {
		return nil, err
	}
	overview.TopEdges, err = e.GetTopEdges(ctx, 5)
	if err != nil {
		return nil, err
	}

	return overview, nil
}

// ────────────────────────────────────────────────────────────────────────────────
// Helper functions
// ────────────────────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWord(row rowScanner) (*model.Word, error) {
	w := &model.Word{}
	var class string
	if err := row.Scan(&w.ID, &w.Token, &w.Total, &w.Start, &w.End, &class); err != nil {
		return nil, err
	}
	w.Class = model.ParseWordClass(class)
	return w, nil
}
