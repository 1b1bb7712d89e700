package tabular

import (
	"strconv"
	"strings"
)

// Constraint restricts a single field. Exactly one of the two shapes is
// meaningful: a set-membership test (In) for category-like fields, or a
// numeric range (Min/Max) where a nil bound is unbounded on that side.
// A zero-value Constraint restricts nothing.
type Constraint struct {
	In  []string `json:"in,omitempty"`
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsZero reports whether the constraint restricts nothing.
func (c Constraint) IsZero() bool {
	return len(c.In) == 0 && c.Min == nil && c.Max == nil
}

// Normalize returns the constraint with an inverted range (min > max) swapped
// so both bounds still apply. Set constraints pass through unchanged.
func (c Constraint) Normalize() Constraint {
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		c.Min, c.Max = c.Max, c.Min
	}
	return c
}

// MatchesSet reports whether value is a member of the set. An empty set does
// not restrict. Membership comparison is case-insensitive.
func (c Constraint) MatchesSet(value string) bool {
	if len(c.In) == 0 {
		return true
	}
	for _, candidate := range c.In {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// MatchesRange reports whether v falls within the (normalized) range bounds.
func (c Constraint) MatchesRange(v float64) bool {
	n := c.Normalize()
	if n.Min != nil && v < *n.Min {
		return false
	}
	if n.Max != nil && v > *n.Max {
		return false
	}
	return true
}

// ParseRange builds a range constraint from raw user input. A bound that is
// blank or fails to parse as a number is treated as unbounded on that side
// rather than surfacing an error; malformed input degrades, it never rejects.
func ParseRange(minText, maxText string) Constraint {
	var c Constraint
	if v, ok := parseBound(minText); ok {
		c.Min = &v
	}
	if v, ok := parseBound(maxText); ok {
		c.Max = &v
	}
	return c.Normalize()
}

func parseBound(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
