// Package filter provides word filter expressions using expr-lang/expr
package filter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/Zerofisher/wordchain/pkg/model"
)

// WordEnv is the environment for expression evaluation.
// It maps field names to word row data.
type WordEnv struct {
	ID    int64  `expr:"id"`
	Token string `expr:"token"`
	Len   int    `expr:"length"` // Token length in runes
	Class string `expr:"class"`

	Total int64 `expr:"total"`
	Start int64 `expr:"start"`
	End   int64 `expr:"end"`

	// Share of occurrences that opened or closed a sentence (0 when Total is 0)
	StartRatio float64 `expr:"start_ratio"`
	EndRatio   float64 `expr:"end_ratio"`

	// Class flags (for simple filtering like "alpha" or "!misc")
	IsAlpha bool `expr:"is_alpha"`
	IsMisc  bool `expr:"is_misc"`
}

// Compile compiles a word filter expression such as
// `total > 10 && token startsWith "th"` or `end_ratio >= 0.5`.
func Compile(filterStr string) (func(*model.Word) bool, error) {
	program, err := compile(filterStr)
	if err != nil {
		return nil, err
	}

	return func(w *model.Word) bool {
		result, err := expr.Run(program, wordToEnv(w))
		if err != nil {
			return false
		}
		b, ok := result.(bool)
		return ok && b
	}, nil
}

// Apply returns the words matching filterStr. An empty filter matches all.
func Apply(filterStr string, words []*model.Word) ([]*model.Word, error) {
	if strings.TrimSpace(filterStr) == "" {
		return words, nil
	}
	match, err := Compile(filterStr)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Word, 0, len(words))
	for _, w := range words {
		if match(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func compile(filterStr string) (*vm.Program, error) {
	processed := preprocessFilter(filterStr)
	program, err := expr.Compile(processed, expr.Env(WordEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter '%s': %w", filterStr, err)
	}
	return program, nil
}

// preprocessFilter rewrites shorthand syntax into expr syntax
func preprocessFilter(filter string) string {
	classMap := map[string]string{
		"alpha": "is_alpha",
		"misc":  "is_misc",
	}

	words := tokenizeFilter(filter)
	for i, word := range words {
		if replacement, ok := classMap[strings.ToLower(word)]; ok {
			words[i] = replacement
		}
		// "token ~ re" as a shorthand for "token matches re"
		if word == "~" {
			words[i] = "matches"
		}
	}
	filter = strings.Join(words, "")

	// Handle "in {x, y, z}" syntax - convert to "in [x, y, z]"
	filter = strings.ReplaceAll(filter, "{", "[")
	filter = strings.ReplaceAll(filter, "}", "]")

	return filter
}

// tokenizeFilter breaks a filter string into tokens while preserving
// structure. Quoted strings are kept as single tokens.
func tokenizeFilter(filter string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, ch := range filter {
		if quote != 0 {
			current.WriteRune(ch)
			if ch == quote {
				quote = 0
				flush()
			}
			continue
		}

		switch ch {
		case '"', '\'', '`':
			flush()
			quote = ch
			current.WriteRune(ch)
		case ' ', '\t', '\n', '.', '(', ')', '[', ']', '{', '}', ',', '!', '~':
			flush()
			tokens = append(tokens, string(ch))
		case '=', '>', '<', '&', '|':
			if s := current.String(); s != "" && !strings.ContainsAny(s[:1], "=><&|") {
				flush()
			}
			current.WriteRune(ch)
		default:
			if s := current.String(); s != "" && strings.ContainsAny(s[:1], "=><&|") {
				flush()
			}
			current.WriteRune(ch)
		}
	}
	flush()

	return tokens
}

// wordToEnv converts a Word to a WordEnv for expression evaluation
func wordToEnv(w *model.Word) WordEnv {
	env := WordEnv{
		ID:      w.ID,
		Token:   w.Token,
		Len:     utf8.RuneCountInString(w.Token),
		Class:   string(w.Class),
		Total:   w.Total,
		Start:   w.Start,
		End:     w.End,
		IsAlpha: w.Class.IsAlpha(),
		IsMisc:  !w.Class.IsAlpha(),
	}
	if w.Total > 0 {
		env.StartRatio = float64(w.Start) / float64(w.Total)
		env.EndRatio = float64(w.End) / float64(w.Total)
	}
	return env
}
