// Package sqlite provides the SQLite implementation of store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/store"
)

// DefaultBusyTimeout is how long a connection waits on a held lock before
// the driver reports SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Config holds configuration for the SQLite store.
type Config struct {
	// Path to the SQLite database file.
	Path string

	// ReadOnly opens an existing database in read-only mode.
	ReadOnly bool

	// BusyTimeout bounds lock waits. Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// User and Pass enable the driver's user authentication when set.
	User string
	Pass string

	// MaxReadConns sizes the pool of a read-only handle. Zero means 4.
	MaxReadConns int
}

// SQLiteStore is the SQLite implementation of store.Store.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
	now  func() time.Time

	// Write transaction state
	mu    sync.Mutex
	tx    *sql.Tx
	stmts map[string]*sql.Stmt // Prepared statements within tx
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens (and for writable handles creates) a SQLite store.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if cfg.ReadOnly {
		n := cfg.MaxReadConns
		if n <= 0 {
			n = 4
		}
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	} else {
		// Single writer connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:    db,
		path:  cfg.Path,
		cfg:   cfg,
		now:   time.Now,
		stmts: make(map[string]*sql.Stmt),
	}

	if cfg.ReadOnly {
		err = s.checkSchema(context.Background())
	} else {
		err = s.initSchema(context.Background())
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Open opens a writable store at path with default settings.
func Open(path string) (*SQLiteStore, error) {
	return New(Config{Path: path})
}

// OpenReadOnly opens an existing store for queries.
func OpenReadOnly(path string) (*SQLiteStore, error) {
	return New(Config{Path: path, ReadOnly: true})
}

func buildDSN(cfg Config) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10))
	if cfg.ReadOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
		params.Set("_txlock", "immediate")
	}
	if cfg.User != "" {
		params.Set("_auth", "")
		params.Set("_auth_user", cfg.User)
		params.Set("_auth_pass", cfg.Pass)
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// Close rolls back any open batch and closes the database.
func (s *SQLiteStore) Close() error {
	s.RollbackBatch()
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB returns the underlying database connection for direct queries.
// Use with caution - prefer using the Store interface methods.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// ────────────────────────────────────────────────────────────────────────────────
// Error classification
// ────────────────────────────────────────────────────────────────────────────────

// wrapErr annotates err with op and marks lock contention as transient.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// ────────────────────────────────────────────────────────────────────────────────
// Schema Initialization
// ────────────────────────────────────────────────────────────────────────────────

const schema = `
-- Source files
CREATE TABLE IF NOT EXISTS files (
	file_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path     TEXT    NOT NULL UNIQUE,
	word_count    INTEGER NOT NULL DEFAULT 0,
	date_imported TEXT    NOT NULL
);

-- Normalized tokens and their global counters
CREATE TABLE IF NOT EXISTS word (
	word_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	word_token  TEXT    NOT NULL UNIQUE,
	total_count INTEGER NOT NULL DEFAULT 0,
	start_count INTEGER NOT NULL DEFAULT 0,
	end_count   INTEGER NOT NULL DEFAULT 0,
	class       TEXT    NOT NULL DEFAULT 'misc' CHECK (class IN ('alpha', 'misc'))
);

-- Follower edges
CREATE TABLE IF NOT EXISTS word_follow (
	from_word_id INTEGER NOT NULL,
	to_word_id   INTEGER NOT NULL,
	total_count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (from_word_id, to_word_id),
	FOREIGN KEY (from_word_id) REFERENCES word(word_id),
	FOREIGN KEY (to_word_id) REFERENCES word(word_id)
);

CREATE INDEX IF NOT EXISTS idx_word_follow_from_count ON word_follow(from_word_id, total_count);
CREATE INDEX IF NOT EXISTS idx_word_end_count ON word(end_count);
`

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return wrapErr("create meta", err)
	}

	v, err := s.SchemaVersion(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Fresh database
	case err != nil:
		return err
	case v != store.SchemaVersion:
		return fmt.Errorf("%w: database has version %d, want %d", store.ErrSchemaMismatch, v, store.SchemaVersion)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrapErr("execute schema", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
		"schema_version", strconv.Itoa(store.SchemaVersion))
	return wrapErr("set schema version", err)
}

func (s *SQLiteStore) checkSchema(ctx context.Context) error {
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaMismatch, err)
	}
	if v != store.SchemaVersion {
		return fmt.Errorf("%w: database has version %d, want %d", store.ErrSchemaMismatch, v, store.SchemaVersion)
	}
	return nil
}

// SchemaVersion returns the version recorded in the meta table, or
// store.ErrNotFound when none is recorded.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, wrapErr("read schema version", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: bad schema_version %q", store.ErrSchemaMismatch, value)
	}
	return v, nil
}

// ────────────────────────────────────────────────────────────────────────────────
// File Operations
// ────────────────────────────────────────────────────────────────────────────────

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the open batch transaction or the database. Caller holds mu.
func (s *SQLiteStore) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// EnsureFile returns the id of path, inserting it when absent.
func (s *SQLiteStore) EnsureFile(ctx context.Context, path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.conn()
	_, err := q.ExecContext(ctx, `INSERT INTO files (file_path, word_count, date_imported)
		VALUES (?, 0, ?) ON CONFLICT(file_path) DO NOTHING`,
		path, s.now().Format(time.DateOnly))
	if err != nil {
		return 0, wrapErr("insert file", err)
	}

	var id int64
	if err := q.QueryRowContext(ctx, `SELECT file_id FROM files WHERE file_path = ?`, path).Scan(&id); err != nil {
		return 0, wrapErr("lookup file", err)
	}
	return id, nil
}

// AddFileWordCount adds n to the stored word count of fileID.
func (s *SQLiteStore) AddFileWordCount(ctx context.Context, fileID, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return store.ErrNoBatch
	}

	stmt, err := s.getStmt(ctx, "add_file_words", `UPDATE files SET word_count = word_count + ? WHERE file_id = ?`)
	if err != nil {
		return wrapErr("prepare file update", err)
	}
	res, err := stmt.ExecContext(ctx, n, fileID)
	if err != nil {
		return wrapErr("update file word count", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("file %d: %w", fileID, store.ErrNotFound)
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────────
// Batch Write Operations
// ────────────────────────────────────────────────────────────────────────────────

// BeginBatch starts a batch write transaction. The write lock is taken at
// BEGIN (_txlock=immediate), so contention surfaces here as a transient error.
func (s *SQLiteStore) BeginBatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return fmt.Errorf("batch already in progress")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin batch", err)
	}
	s.tx = tx
	s.stmts = make(map[string]*sql.Stmt)
	return nil
}

// CommitBatch commits the current batch.
func (s *SQLiteStore) CommitBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return store.ErrNoBatch
	}

	s.closeStmts()
	err := s.tx.Commit()
	s.tx = nil
	return wrapErr("commit batch", err)
}

// RollbackBatch rolls back the current batch.
func (s *SQLiteStore) RollbackBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}

	s.closeStmts()
	err := s.tx.Rollback()
	s.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return wrapErr("rollback batch", err)
}

func (s *SQLiteStore) closeStmts() {
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = nil
}

func (s *SQLiteStore) getStmt(ctx context.Context, name, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts[name]; ok {
		return stmt, nil
	}

	stmt, err := s.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts[name] = stmt
	return stmt, nil
}

// placeholders returns "(?,?),(?,?)..." for rows tuples of width cols.
func placeholders(rows, cols int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"
	return strings.TrimSuffix(strings.Repeat(tuple+",", rows), ",")
}

// UpsertWords adds deltas to the word table in one multi-row statement.
// On a token conflict the counters are added and the class is overwritten.
func (s *SQLiteStore) UpsertWords(ctx context.Context, deltas []model.WordDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return store.ErrNoBatch
	}

	query := `INSERT INTO word (word_token, total_count, start_count, end_count, class)
	VALUES ` + placeholders(len(deltas), 5) + `
	ON CONFLICT(word_token) DO UPDATE SET
		total_count = total_count + excluded.total_count,
		start_count = start_count + excluded.start_count,
		end_count = end_count + excluded.end_count,
		class = excluded.class`

	stmt, err := s.getStmt(ctx, fmt.Sprintf("upsert_words_%d", len(deltas)), query)
	if err != nil {
		return wrapErr("prepare word upsert", err)
	}

	args := make([]any, 0, len(deltas)*5)
	for _, d := range deltas {
		class := model.ParseWordClass(string(d.Class))
		args = append(args, d.Token, d.Total, d.Begin, d.End, string(class))
	}
	_, err = stmt.ExecContext(ctx, args...)
	return wrapErr("upsert words", err)
}

// ResolveIDs looks up word ids for tokens in a single IN query.
func (s *SQLiteStore) ResolveIDs(ctx context.Context, tokens []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(tokens))
	if len(tokens) == 0 {
		return ids, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil, store.ErrNoBatch
	}

	query := `SELECT word_token, word_id FROM word WHERE word_token IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(tokens)), ",") + `)`

	stmt, err := s.getStmt(ctx, fmt.Sprintf("resolve_ids_%d", len(tokens)), query)
	if err != nil {
		return nil, wrapErr("prepare id lookup", err)
	}

	args := make([]any, len(tokens))
	for i, t := range tokens {
		args[i] = t
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapErr("resolve ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		var id int64
		if err := rows.Scan(&token, &id); err != nil {
			return nil, wrapErr("scan id", err)
		}
		ids[token] = id
	}
	return ids, wrapErr("resolve ids", rows.Err())
}

// UpsertFollowers adds resolved deltas to word_follow in one multi-row statement.
func (s *SQLiteStore) UpsertFollowers(ctx context.Context, deltas []model.FollowerDelta) error {
	args := make([]any, 0, len(deltas)*3)
	for _, d := range deltas {
		if !d.Resolved {
			continue
		}
		args = append(args, d.FromID, d.ToID, d.Count)
	}
	n := len(args) / 3
	if n == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return store.ErrNoBatch
	}

	query := `INSERT INTO word_follow (from_word_id, to_word_id, total_count)
	VALUES ` + placeholders(n, 3) + `
	ON CONFLICT(from_word_id, to_word_id) DO UPDATE SET
		total_count = total_count + excluded.total_count`

	stmt, err := s.getStmt(ctx, fmt.Sprintf("upsert_followers_%d", n), query)
	if err != nil {
		return wrapErr("prepare follower upsert", err)
	}
	_, err = stmt.ExecContext(ctx, args...)
	return wrapErr("upsert followers", err)
}
