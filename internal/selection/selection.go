// Package selection combines feature id sets according to a selection mode.
package selection

import (
	"fmt"
	"sort"
	"strings"
)

// Set is a set of feature ids.
type Set map[int64]struct{}

// NewSet creates a set holding ids.
func NewSet(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s Set) Add(id int64) { s[id] = struct{}{} }

// Len returns the number of ids.
func (s Set) Len() int { return len(s) }

// Clone returns a copy of the set. A nil set clones to an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same ids.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the ids in ascending order.
func (s Set) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Mode selects how a hover result is merged into a layer's selection.
type Mode uint8

const (
	// ModeAdd unions the found ids into the selection.
	ModeAdd Mode = iota
	// ModeReplace discards the previous selection.
	ModeReplace
	// ModeToggle flips membership of each found id.
	ModeToggle
)

var modeNames = [...]string{
	ModeAdd:     "add",
	ModeReplace: "replace",
	ModeToggle:  "toggle",
}

// String returns the persisted name of the mode.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return int(m) < len(modeNames) }

// ParseMode parses a persisted mode name. Matching ignores case.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return ModeAdd, fmt.Errorf("unknown selection mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid selection mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Apply returns the new selection for a layer given its current selection
// and the ids found under the cursor. Inputs are never modified. An unknown
// mode behaves like ModeAdd.
func Apply(mode Mode, current, found Set) Set {
	switch mode {
	case ModeReplace:
		return found.Clone()
	case ModeToggle:
		out := current.Clone()
		for id := range found {
			if out.Has(id) {
				delete(out, id)
			} else {
				out[id] = struct{}{}
			}
		}
		return out
	default:
		out := current.Clone()
		for id := range found {
			out[id] = struct{}{}
		}
		return out
	}
}
