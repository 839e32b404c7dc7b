package tokenize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Zerofisher/wordchain/pkg/model"
)

var (
	// One or more terminal marks, then optional closing quotes or brackets.
	reSentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*$`)

	reNumeric = regexp.MustCompile(`^\p{Nd}+$`)

	// Letters (with combining marks), optionally one punctuation char and closers.
	reAlpha = regexp.MustCompile(`^\p{L}[\p{L}\p{M}]*(\p{P}["')\]]*)?$`)
)

// EndsSentence reports whether a raw (not yet normalized) token closes a sentence.
func EndsSentence(raw string) bool {
	return reSentenceEnd.MatchString(raw)
}

// IsNumeric reports whether a raw token is a pure run of decimal digits.
func IsNumeric(raw string) bool {
	return reNumeric.MatchString(raw)
}

// Normalize lowercases a token and strips leading and trailing runes that are
// neither letters nor digits. Trailing combining marks stay attached to the
// letter they modify. The result may be empty.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.TrimRightFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}

// Classify returns the class of a normalized token.
func Classify(token string) model.WordClass {
	if token != "" && reAlpha.MatchString(token) {
		return model.ClassAlpha
	}
	return model.ClassMisc
}
