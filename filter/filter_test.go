package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zerofisher/wordchain/pkg/model"
)

var (
	hello = &model.Word{ID: 1, Token: "hello", Total: 4, Start: 3, End: 0, Class: model.ClassAlpha}
	world = &model.Word{ID: 2, Token: "world", Total: 4, Start: 0, End: 3, Class: model.ClassAlpha}
	cafe  = &model.Word{ID: 3, Token: "café", Total: 1, Start: 0, End: 1, Class: model.ClassAlpha}
	dash  = &model.Word{ID: 4, Token: "foo-bar", Total: 2, Class: model.ClassMisc}
)

func TestCompile(t *testing.T) {
	tests := []struct {
		expr string
		want map[*model.Word]bool
	}{
		{`total > 2`, map[*model.Word]bool{hello: true, world: true, cafe: false, dash: false}},
		{`token startsWith "w"`, map[*model.Word]bool{hello: false, world: true}},
		{`end_ratio >= 0.75`, map[*model.Word]bool{hello: false, world: true, cafe: true, dash: false}},
		{`start_ratio > 0.5 && alpha`, map[*model.Word]bool{hello: true, world: false}},
		{`misc`, map[*model.Word]bool{hello: false, dash: true}},
		{`!misc`, map[*model.Word]bool{hello: true, dash: false}},
		{`class == "misc"`, map[*model.Word]bool{hello: false, dash: true}},
		{`token in {"hello", "café"}`, map[*model.Word]bool{hello: true, world: false, cafe: true}},
		{`length == 4`, map[*model.Word]bool{cafe: true, hello: false}},
		{`token ~ "^w.r"`, map[*model.Word]bool{world: true, hello: false}},
		{`id<=2`, map[*model.Word]bool{hello: true, world: true, cafe: false}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			match, err := Compile(tt.expr)
			require.NoError(t, err)
			for w, want := range tt.want {
				assert.Equal(t, want, match(w), w.Token)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, s := range []string{`total >`, `nosuchfield == 1`, `token + 1`} {
		_, err := Compile(s)
		assert.Error(t, err, s)
	}
}

func TestZeroTotalRatios(t *testing.T) {
	match, err := Compile(`start_ratio == 0 && end_ratio == 0`)
	require.NoError(t, err)
	assert.True(t, match(&model.Word{Token: "x", Class: model.ClassAlpha}))
}

func TestApply(t *testing.T) {
	words := []*model.Word{hello, world, cafe, dash}

	all, err := Apply("  ", words)
	require.NoError(t, err)
	assert.Equal(t, words, all)

	got, err := Apply(`alpha && end > 0`, words)
	require.NoError(t, err)
	assert.Equal(t, []*model.Word{world, cafe}, got)

	_, err = Apply(`total >`, words)
	assert.Error(t, err)
}

func TestPreprocessFilter(t *testing.T) {
	tests := []struct{ in, want string }{
		{`alpha`, `is_alpha`},
		{`!misc && total>1`, `!is_misc && total>1`},
		{`token == "alpha"`, `token == "alpha"`},
		{`token in {"a", "b"}`, `token in ["a", "b"]`},
		{`token ~ "x"`, `token matches "x"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, preprocessFilter(tt.in), tt.in)
	}
}
