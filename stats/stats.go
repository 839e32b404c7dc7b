// Package stats provides corpus statistics over stored words and followers
package stats

import (
	"fmt"
	"io"
	"math/bits"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Zerofisher/wordchain/pkg/model"
)

// Manager collects and reports various corpus statistics
type Manager struct {
	words       map[string]*model.Word
	freqBuckets map[int]*Bucket // keyed by floor(log2(total))
	lenBuckets  map[int]*Bucket // keyed by rune length
	fanout      map[string]*Fanout
	totalWords  int
	totalTokens int64
}

// Bucket counts words and their occurrences for one histogram bin
type Bucket struct {
	Low, High int64 // Inclusive range
	Words     int
	Tokens    int64
}

// Fanout describes the outgoing edges of one word
type Fanout struct {
	Token     string
	Followers int
	Edges     int64 // Sum of edge counts
	Top       string
	TopCount  int64
}

// NewManager creates a new statistics manager
func NewManager() *Manager {
	return &Manager{
		words:       make(map[string]*model.Word),
		freqBuckets: make(map[int]*Bucket),
		lenBuckets:  make(map[int]*Bucket),
		fanout:      make(map[string]*Fanout),
	}
}

// ProcessWord updates statistics with a word row
func (m *Manager) ProcessWord(w *model.Word) {
	if _, seen := m.words[w.Token]; seen {
		return
	}
	m.words[w.Token] = w
	m.totalWords++
	m.totalTokens += w.Total

	m.updateFrequency(w)
	m.updateLengths(w)
}

// ProcessFollowers records the follower list of token
func (m *Manager) ProcessFollowers(token string, followers []model.FollowerCount) {
	if len(followers) == 0 {
		return
	}
	f := &Fanout{Token: token, Followers: len(followers)}
	for _, fc := range followers {
		f.Edges += fc.Count
		if fc.Count > f.TopCount || (fc.Count == f.TopCount && fc.Token < f.Top) {
			f.Top, f.TopCount = fc.Token, fc.Count
		}
	}
	m.fanout[token] = f
}

func (m *Manager) updateFrequency(w *model.Word) {
	if w.Total <= 0 {
		return
	}
	exp := bits.Len64(uint64(w.Total)) - 1
	b, ok := m.freqBuckets[exp]
	if !ok {
		b = &Bucket{Low: 1 << exp, High: 1<<(exp+1) - 1}
		m.freqBuckets[exp] = b
	}
	b.Words++
	b.Tokens += w.Total
}

func (m *Manager) updateLengths(w *model.Word) {
	n := utf8.RuneCountInString(w.Token)
	b, ok := m.lenBuckets[n]
	if !ok {
		b = &Bucket{Low: int64(n), High: int64(n)}
		m.lenBuckets[n] = b
	}
	b.Words++
	b.Tokens += w.Total
}

// FrequencyBuckets returns the frequency histogram in ascending order
func (m *Manager) FrequencyBuckets() []*Bucket {
	return sortedBuckets(m.freqBuckets)
}

// LengthBuckets returns the token length histogram in ascending order
func (m *Manager) LengthBuckets() []*Bucket {
	return sortedBuckets(m.lenBuckets)
}

func sortedBuckets(in map[int]*Bucket) []*Bucket {
	out := make([]*Bucket, 0, len(in))
	for _, b := range in {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Low < out[j].Low })
	return out
}

// Fanouts returns fan-out entries, most followers first
func (m *Manager) Fanouts() []*Fanout {
	out := make([]*Fanout, 0, len(m.fanout))
	for _, f := range m.fanout {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Followers != out[j].Followers {
			return out[i].Followers > out[j].Followers
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Position is a word ranked by how often it opens or closes a sentence
type Position struct {
	Token string
	Count int64
	Total int64
	Ratio float64
}

// Starters returns words ranked by start ratio. Words seen fewer than
// minTotal times are skipped.
func (m *Manager) Starters(minTotal int64) []Position {
	return m.positions(minTotal, func(w *model.Word) int64 { return w.Start })
}

// Enders returns words ranked by end ratio.
func (m *Manager) Enders(minTotal int64) []Position {
	return m.positions(minTotal, func(w *model.Word) int64 { return w.End })
}

func (m *Manager) positions(minTotal int64, count func(*model.Word) int64) []Position {
	var out []Position
	for _, w := range m.words {
		c := count(w)
		if c == 0 || w.Total < max(minTotal, 1) {
			continue
		}
		out = append(out, Position{Token: w.Token, Count: c, Total: w.Total, Ratio: float64(c) / float64(w.Total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ratio != out[j].Ratio {
			return out[i].Ratio > out[j].Ratio
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// ────────────────────────────────────────────────────────────────────────────────
// Printing
// ────────────────────────────────────────────────────────────────────────────────

const rule = "================================================================================"

// PrintFrequency writes the word frequency histogram to the writer
func (m *Manager) PrintFrequency(w io.Writer) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Word Frequency")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-20s %10s %8s %14s %8s\n", "Occurrences", "Words", "%", "Tokens", "%")

	for _, b := range m.FrequencyBuckets() {
		label := fmt.Sprintf("%d - %d", b.Low, b.High)
		if b.Low == b.High {
			label = fmt.Sprintf("%d", b.Low)
		}
		fmt.Fprintf(w, "%-20s %10d %7.1f%% %14s %7.1f%%\n",
			label,
			b.Words,
			percent(int64(b.Words), int64(m.totalWords)),
			FormatCount(b.Tokens),
			percent(b.Tokens, m.totalTokens),
		)
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "%-20s %10d %8s %14s\n", "Total", m.totalWords, "", FormatCount(m.totalTokens))
	fmt.Fprintln(w, rule)
}

// PrintLengths writes the token length histogram to the writer
func (m *Manager) PrintLengths(w io.Writer) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Token Lengths")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-10s %10s %8s %14s\n", "Runes", "Words", "%", "Tokens")

	for _, b := range m.LengthBuckets() {
		fmt.Fprintf(w, "%-10d %10d %7.1f%% %14s\n",
			b.Low,
			b.Words,
			percent(int64(b.Words), int64(m.totalWords)),
			FormatCount(b.Tokens),
		)
	}
	fmt.Fprintln(w, rule)
}

// PrintPositions writes the top sentence starters and enders
func (m *Manager) PrintPositions(w io.Writer, limit int, minTotal int64) {
	section := func(title string, ps []Position) {
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%-24s %10s %10s %8s\n", "Word", "Count", "Total", "Ratio")
		for i, p := range ps {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Fprintf(w, "%-24s %10d %10d %8.3f\n", Truncate(p.Token, 24), p.Count, p.Total, p.Ratio)
		}
	}
	section("Sentence Starters", m.Starters(minTotal))
	section("Sentence Enders", m.Enders(minTotal))
	fmt.Fprintln(w, rule)
}

// PrintFanout writes the words with the most distinct followers
func (m *Manager) PrintFanout(w io.Writer, limit int) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Follower Fan-out")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-24s %10s %12s %-24s %8s\n", "Word", "Followers", "Edges", "Top Follower", "Count")

	for i, f := range m.Fanouts() {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(w, "%-24s %10d %12s %-24s %8d\n",
			Truncate(f.Token, 24),
			f.Followers,
			FormatCount(f.Edges),
			Truncate(f.Top, 24),
			f.TopCount,
		)
	}
	fmt.Fprintln(w, rule)
}

// Helper functions

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// FormatCount renders large counts compactly (e.g. 1.2k, 3.4M).
func FormatCount(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c", float64(n)/float64(div), "kMGTPE"[exp])
}

// FormatDuration renders a duration at a precision suited to its size.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// Truncate shortens s to maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}
