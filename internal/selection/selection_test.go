package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		current Set
		found   Set
		want    Set
	}{
		{"add", ModeAdd, NewSet(1, 2), NewSet(2, 3), NewSet(1, 2, 3)},
		{"replace", ModeReplace, NewSet(1, 2), NewSet(5), NewSet(5)},
		{"toggle", ModeToggle, NewSet(1, 2, 3), NewSet(2, 3, 4), NewSet(1, 4)},
		{"add empty found", ModeAdd, NewSet(7), NewSet(), NewSet(7)},
		{"replace empty found clears", ModeReplace, NewSet(7), NewSet(), NewSet()},
		{"toggle nil current", ModeToggle, nil, NewSet(9), NewSet(9)},
		{"unknown falls back to add", Mode(42), NewSet(1), NewSet(2), NewSet(1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.mode, tt.current, tt.found)
			assert.Equal(t, tt.want.Sorted(), got.Sorted())
		})
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	current := NewSet(1, 2, 3)
	found := NewSet(2, 3, 4)
	for _, m := range []Mode{ModeAdd, ModeReplace, ModeToggle} {
		got := Apply(m, current, found)
		got.Add(100)
		assert.True(t, current.Equal(NewSet(1, 2, 3)), m.String())
		assert.True(t, found.Equal(NewSet(2, 3, 4)), m.String())
	}
}

func TestApplyProperties(t *testing.T) {
	a := NewSet(1, 3, 5, 8)
	b := NewSet(3, 4, 8, 9)

	// Adding is idempotent.
	once := Apply(ModeAdd, a, b)
	assert.True(t, Apply(ModeAdd, once, b).Equal(once))

	// Toggling twice restores the original.
	assert.True(t, Apply(ModeToggle, Apply(ModeToggle, a, b), b).Equal(a))

	// Replace ignores the current selection.
	assert.True(t, Apply(ModeReplace, a, b).Equal(Apply(ModeReplace, nil, b)))
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeAdd, ModeReplace, ModeToggle} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMode(" Toggle ")
	require.NoError(t, err)
	assert.Equal(t, ModeToggle, got)

	_, err = ParseMode("subtract")
	assert.Error(t, err)
	assert.False(t, Mode(9).Valid())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
