// internal/resourceadapter/semver.go
// Minimal SemVer parsing sufficient for the two version gates in §4.8
// (1.2.0 and 1.3.0). The teacher's stack has no semver dependency to borrow;
// this is a small, pure, allocation-light parser in the same spirit as
// pkg/version's tiny build-metadata helpers.
package resourceadapter

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed MAJOR.MINOR.PATCH triple. Pre-release/build metadata
// suffixes are ignored for comparison purposes.
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses a "1.2.3" (optionally "v1.2.3", optionally with a
// "-pre"/"+build" suffix) string. An empty or unparsable string yields the
// zero Version, which compares less than any real release — matching the
// conservative "treat unknown as oldest" stance legacy agents need.
func ParseVersion(s string) Version {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(s, "-+"); i != -1 {
		s = s[:i]
	}
	parts := strings.SplitN(s, ".", 3)
	var v Version
	if len(parts) > 0 {
		v.Major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		v.Minor, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		v.Patch, _ = strconv.Atoi(parts[2])
	}
	return v
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return cmp(v.Major, o.Major)
	}
	if v.Minor != o.Minor {
		return cmp(v.Minor, o.Minor)
	}
	return cmp(v.Patch, o.Patch)
}

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

var (
	v120 = Version{1, 2, 0}
	v130 = Version{1, 3, 0}
)
