package harp

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor version whose components may be left unset.
//
// An unset component floats: it matches any concrete value in Satisfies and
// sorts before every concrete value in Compare. The zero value is the fully
// floating version "x.x". A version never has a minor without a major.
type Version struct {
	major    int
	minor    int
	hasMajor bool
	hasMinor bool
}

const wildcard = "x"

// NewVersion returns the concrete version major.minor.
func NewVersion(major, minor int) Version {
	return Version{major: major, minor: minor, hasMajor: true, hasMinor: true}
}

// NewMajorVersion returns major.x.
func NewMajorVersion(major int) Version {
	return Version{major: major, hasMajor: true}
}

// Major returns the major component and whether it is set.
func (v Version) Major() (int, bool) { return v.major, v.hasMajor }

// Minor returns the minor component and whether it is set.
func (v Version) Minor() (int, bool) { return v.minor, v.hasMinor }

// IsFloating reports whether any component is unset.
func (v Version) IsFloating() bool { return !v.hasMajor || !v.hasMinor }

// String renders the version as "major.minor" using "x" for unset components.
func (v Version) String() string {
	return component(v.major, v.hasMajor) + "." + component(v.minor, v.hasMinor)
}

func component(n int, ok bool) string {
	if !ok {
		return wildcard
	}

	return strconv.Itoa(n)
}

// Compare returns -1, 0 or +1. Unset components order before set ones, then
// components are compared numerically, major first.
func (v Version) Compare(other Version) int {
	if c := compareComponent(v.major, v.hasMajor, other.major, other.hasMajor); c != 0 {
		return c
	}

	return compareComponent(v.minor, v.hasMinor, other.minor, other.hasMinor)
}

func compareComponent(a int, hasA bool, b int, hasB bool) int {
	switch {
	case !hasA && !hasB:
		return 0
	case !hasA:
		return -1
	case !hasB:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// Equal reports whether both components are equal, unset matching only unset.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Satisfies reports whether v is compatible with other: every component set
// on both sides must be equal, an unset component on either side matches any value.
func (v Version) Satisfies(other Version) bool {
	if v.hasMajor && other.hasMajor && v.major != other.major {
		return false
	}
	if v.hasMinor && other.hasMinor && v.minor != other.minor {
		return false
	}

	return true
}

// ParseVersion parses "major.minor" where each component is a non-negative
// integer or "x". "x.N" is rejected because a floating major forces a
// floating minor.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("%w: %q: expected major.minor", ErrVersionFormat, s)
	}

	major, hasMajor, err := parseComponent(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: bad major component", ErrVersionFormat, s)
	}
	minor, hasMinor, err := parseComponent(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: bad minor component", ErrVersionFormat, s)
	}
	if !hasMajor && hasMinor {
		return Version{}, fmt.Errorf("%w: %q: minor cannot be set when major is floating", ErrVersionFormat, s)
	}

	return Version{major: major, minor: minor, hasMajor: hasMajor, hasMinor: hasMinor}, nil
}

func parseComponent(s string) (int, bool, error) {
	if strings.EqualFold(s, wildcard) {
		return 0, false, nil
	}
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false, strconv.ErrSyntax
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false, err
	}

	return int(n), true, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}

	return v
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed

	return nil
}
