package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWordClass(t *testing.T) {
	tests := []struct {
		in   string
		want WordClass
	}{
		{"alpha", ClassAlpha},
		{"misc", ClassMisc},
		{"ALPHA", ClassMisc},
		{"", ClassMisc},
		{"numeric", ClassMisc},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseWordClass(tt.in), "input %q", tt.in)
	}
}

func TestBatchWordTotal(t *testing.T) {
	b := &Batch{Words: []WordDelta{
		{Token: "a", Total: 3},
		{Token: "b", Total: 4},
	}}
	assert.Equal(t, int64(7), b.WordTotal())
	assert.False(t, b.Empty())
	assert.True(t, (&Batch{Terminal: true}).Empty())
}

func TestSortWordDeltas(t *testing.T) {
	deltas := []WordDelta{{Token: "world"}, {Token: "apple"}, {Token: "hello"}}
	SortWordDeltas(deltas)
	assert.Equal(t, "apple", deltas[0].Token)
	assert.Equal(t, "hello", deltas[1].Token)
	assert.Equal(t, "world", deltas[2].Token)
}

func TestSortFollowerDeltasUnresolvedLast(t *testing.T) {
	deltas := []FollowerDelta{
		{FromID: 0, ToID: 0, Resolved: false},
		{FromID: 2, ToID: 1, Resolved: true},
		{FromID: 1, ToID: 9, Resolved: true},
		{FromID: 1, ToID: 3, Resolved: true},
	}
	SortFollowerDeltas(deltas)
	assert.Equal(t, FollowerDelta{FromID: 1, ToID: 3, Resolved: true}, deltas[0])
	assert.Equal(t, FollowerDelta{FromID: 1, ToID: 9, Resolved: true}, deltas[1])
	assert.Equal(t, FollowerDelta{FromID: 2, ToID: 1, Resolved: true}, deltas[2])
	assert.False(t, deltas[3].Resolved)
}
