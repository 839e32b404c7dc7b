package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Zerofisher/wordchain/pkg/model"
)

func TestEndsSentence(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"end.", true},
		{"what?!", true},
		{`"Hello."`, true},
		{"(done.)", true},
		{"quote.'", true},
		{"list]", false},
		{"e.g", false},
		{"plain", false},
		{"...", true},
		{"comma,", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, EndsSentence(tt.raw))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Hello", "hello"},
		{`"Hello."`, "hello"},
		{"(world)", "world"},
		{"don't", "don't"},
		{"...", ""},
		{"--x--", "x"},
		{"ÉCOLE,", "école"},
		{"42", "42"},
		{"Cafe\u0301.", "cafe\u0301"},
		{"\u0301x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		token string
		want  model.WordClass
	}{
		{"hello", model.ClassAlpha},
		{"école", model.ClassAlpha},
		{"日本語", model.ClassAlpha},
		{"hello.", model.ClassAlpha},
		{`hello."`, model.ClassAlpha},
		{"don't", model.ClassMisc},
		{"x2y", model.ClassMisc},
		{"42", model.ClassMisc},
		{"", model.ClassMisc},
		{"co-op", model.ClassMisc},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.token))
		})
	}
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("42"))
	assert.True(t, IsNumeric("٤٢"))
	assert.False(t, IsNumeric("42."))
	assert.False(t, IsNumeric("4a"))
	assert.False(t, IsNumeric(""))
}
