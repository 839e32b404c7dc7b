// Package model defines the core data models for the word/follower graph.
// Persistent entities (File, Word, Follower) mirror the store tables; the
// delta types and Batch are transient values passed from tokenizers to the writer.
package model

import (
	"sort"
	"time"
)

// ────────────────────────────────────────────────────────────────────────────────
// WordClass - closed enumeration {alpha, misc}
// ────────────────────────────────────────────────────────────────────────────────

// WordClass classifies a normalized token.
type WordClass string

const (
	ClassAlpha WordClass = "alpha"
	ClassMisc  WordClass = "misc"
)

// ParseWordClass maps anything that is not exactly "alpha" to misc.
func ParseWordClass(s string) WordClass {
	if WordClass(s) == ClassAlpha {
		return ClassAlpha
	}
	return ClassMisc
}

// IsAlpha reports whether the class counts towards words and followers.
func (c WordClass) IsAlpha() bool {
	return c == ClassAlpha
}

// ────────────────────────────────────────────────────────────────────────────────
// Persistent entities
// ────────────────────────────────────────────────────────────────────────────────

// File is one ingested input file.
type File struct {
	ID           int64     `json:"file_id"`
	Path         string    `json:"file_path"`  // Canonical path (unique)
	WordCount    int64     `json:"word_count"` // Sum of Total over this file's batches
	DateImported time.Time `json:"date_imported"`
}

// Word is a normalized token and its global counters.
type Word struct {
	ID    int64     `json:"word_id"`
	Token string    `json:"word_token"`
	Total int64     `json:"total_count"`
	Start int64     `json:"start_count"` // Times the word opened a sentence
	End   int64     `json:"end_count"`   // Times the word closed a sentence
	Class WordClass `json:"class"`
}

// Follower is a directed edge from one word to the word observed right after it.
type Follower struct {
	FromID int64 `json:"from_word_id"`
	ToID   int64 `json:"to_word_id"`
	Count  int64 `json:"total_count"`
}

// FollowerCount is a follower token paired with its edge count (read side).
type FollowerCount struct {
	Token string `json:"token"`
	Count int64  `json:"count"`
}

// ────────────────────────────────────────────────────────────────────────────────
// Deltas & Batch - transient tokenizer output
// ────────────────────────────────────────────────────────────────────────────────

// WordDelta is a pre-aggregated increment for one token.
type WordDelta struct {
	Token string
	Total int64
	Begin int64
	End   int64
	Class WordClass
}

// BigramKey is an ordered pair of adjacent alpha tokens.
type BigramKey struct {
	First  string
	Second string
}

// BigramDelta is a pre-aggregated increment for one bigram.
type BigramDelta struct {
	Key   BigramKey
	Count int64
}

// FollowerDelta is a BigramDelta whose tokens have been resolved to word ids.
// Resolved is false when either side is missing from the word table.
type FollowerDelta struct {
	FromID   int64
	ToID     int64
	Count    int64
	Resolved bool
}

// Source identifies one input being ingested.
type Source struct {
	ID   int    `json:"id"`
	Path string `json:"path"` // Canonical path, used as the files.file_path key
}

// Batch is one transferable unit of deltas, applied by the writer in a single transaction.
type Batch struct {
	Source    Source
	Words     []WordDelta
	Bigrams   []BigramDelta
	Processed int64 // Byte watermark, monotonic per source
	Terminal  bool  // Last batch for Source
	Err       error // Tokenizer failure carried by the terminal batch
}

// WordTotal returns the sum of Total over the batch's word deltas.
func (b *Batch) WordTotal() int64 {
	var n int64
	for _, w := range b.Words {
		n += w.Total
	}
	return n
}

// Empty reports whether the batch carries no deltas.
func (b *Batch) Empty() bool {
	return len(b.Words) == 0 && len(b.Bigrams) == 0
}

// ────────────────────────────────────────────────────────────────────────────────
// Helper functions
// ────────────────────────────────────────────────────────────────────────────────

// SortWordDeltas orders deltas lexicographically by token.
func SortWordDeltas(deltas []WordDelta) {
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].Token < deltas[j].Token
	})
}

// SortFollowerDeltas orders deltas by (FromID, ToID) ascending, unresolved last.
func SortFollowerDeltas(deltas []FollowerDelta) {
	sort.Slice(deltas, func(i, j int) bool {
		a, b := deltas[i], deltas[j]
		if a.Resolved != b.Resolved {
			return a.Resolved
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.ToID < b.ToID
	})
}
