// Package query provides the read-side interface over the word store.
// Sentence generators, the CLI and reports read through this package
// instead of accessing the store directly.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zerofisher/wordchain/pkg/model"
)

// Order selects ascending or descending count order.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder maps "asc"/"desc" (any case, empty means desc) to an Order.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc":
		return OrderDesc, nil
	case "asc":
		return OrderAsc, nil
	}
	return "", fmt.Errorf("unknown order %q (want asc or desc)", s)
}

func (o Order) sql() string {
	if o == OrderAsc {
		return "ASC"
	}
	return "DESC"
}

// QueryEngine provides the main query interface. Token arguments are
// normalized before lookup. Lookups of unknown words return an error
// wrapping store.ErrNotFound; a known word with no followers yields an
// empty, non-nil slice.
type QueryEngine interface {
	// Generator contract
	WordID(ctx context.Context, token string) (int64, error)
	Followers(ctx context.Context, token string, order Order) ([]string, error)
	FollowersWithCounts(ctx context.Context, token string) ([]model.FollowerCount, error)
	MaxEndCount(ctx context.Context) (int64, error)
	EndCount(ctx context.Context, token string) (int64, error)
	AllTokens(ctx context.Context) ([]string, error)

	// Word and file listings
	GetWord(ctx context.Context, token string) (*model.Word, error)
	GetWords(ctx context.Context, filter WordFilter) ([]*model.Word, error)
	GetWordCount(ctx context.Context) (int, error)
	GetFiles(ctx context.Context) ([]*model.File, error)
	GetTopEdges(ctx context.Context, limit int) ([]*Edge, error)

	// Statistics
	GetOverview(ctx context.Context) (*Overview, error)
}

// WordFilter defines filters for word listings.
type WordFilter struct {
	// Offset for pagination
	Offset int
	// Limit for pagination (0 means no limit)
	Limit int

	// Class filter ("" means any)
	Class model.WordClass

	// MinTotal keeps words seen at least this many times
	MinTotal int64

	// Prefix keeps tokens starting with this (normalized) string
	Prefix string

	// Sorting
	SortBy    string // "token", "total", "start", "end", "id"
	SortOrder string // "asc", "desc"
}

// Edge is a follower edge with both tokens resolved.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
}

// Overview provides high-level summary information.
type Overview struct {
	// Database info
	DBPath        string
	SchemaVersion int

	// Table sizes
	Files      int
	Words      int
	AlphaWords int
	Edges      int

	// Counters
	TotalTokens    int64 // Sum of word.total_count
	FileWordCount  int64 // Sum of files.word_count
	SentenceStarts int64
	SentenceEnds   int64
	MaxEndCount    int64
	AvgFollowers   float64 // Edges per word with at least one follower

	// Top lists
	TopWords []*model.Word
	TopEdges []*Edge
}
