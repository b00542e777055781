package domain

import (
	"fmt"
	"strings"
)

// Classification is a totally ordered sensitivity label.
// Comparisons go through IsAtLeast; the integer value is the ordinal.
type Classification int

// Classification levels in ascending order.
const (
	Unclassified Classification = iota
	Confidential
	Secret
	TopSecret
)

var classificationNames = [...]string{
	Unclassified: "UNCLASSIFIED",
	Confidential: "CONFIDENTIAL",
	Secret:       "SECRET",
	TopSecret:    "TOP_SECRET",
}

// Classifications returns every level from lowest to highest.
func Classifications() []Classification {
	return []Classification{Unclassified, Confidential, Secret, TopSecret}
}

// IsValid returns true if the level is one of the defined levels.
func (c Classification) IsValid() bool {
	return c >= Unclassified && c <= TopSecret
}

// IsAtLeast reports whether c is the same as or above other.
// A level L satisfies a clearance C iff C.IsAtLeast(L).
func (c Classification) IsAtLeast(other Classification) bool {
	return int(c) >= int(other)
}

// String returns the canonical upper-case name.
func (c Classification) String() string {
	if !c.IsValid() {
		return fmt.Sprintf("Classification(%d)", int(c))
	}
	return classificationNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClassification, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(text []byte) error {
	parsed, err := ParseClassification(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClassification parses a level name. Matching is case-insensitive and
// accepts spaces or hyphens in place of underscores ("top secret").
func ParseClassification(s string) (Classification, error) {
	normalised := strings.ToUpper(strings.TrimSpace(s))
	normalised = strings.NewReplacer("-", "_", " ", "_").Replace(normalised)
	for i, name := range classificationNames {
		if name == normalised {
			return Classification(i), nil
		}
	}
	return Unclassified, fmt.Errorf("%w: %q", ErrInvalidClassification, s)
}

// MaxClassification returns the highest of the given levels.
// With no arguments it returns Unclassified.
func MaxClassification(levels ...Classification) Classification {
	highest := Unclassified
	for _, level := range levels {
		if level.IsAtLeast(highest) {
			highest = level
		}
	}
	return highest
}
