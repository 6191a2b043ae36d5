package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed version string. Components compare numerically,
// left to right; a missing component compares as zero, so "2.3" == "2.3.0".
type Version []int

// ParseVersion parses dot-or-underscore separated digit groups ("2.3",
// "2_3_1"). Anything else is rejected: version directories are the sole
// input to discovery and must follow the convention.
func ParseVersion(s string) (Version, error) {
	normalized := strings.ReplaceAll(s, "_", ".")
	parts := strings.Split(normalized, ".")
	v := make(Version, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid version %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", s, err)
		}
		v = append(v, n)
	}
	return v, nil
}

// String renders the canonical dotted form.
func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	n := len(v)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}
