// Package version orders the version tokens items carry ("1.0", "1.1",
// "2.0.0-rc1"). Tokens are compared as semantic versions when they parse as
// such and by dotted numeric segments otherwise.
package version

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Initial is the version assigned to items that do not declare one.
const Initial = "1.0"

// Normalize trims surrounding whitespace and a leading "v".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && s[1] >= '0' && s[1] <= '9' {
		s = s[1:]
	}
	return s
}

// Valid reports whether s is a usable version token.
func Valid(s string) bool {
	s = Normalize(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	return !strings.Contains(s, "..") && !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

// Equal reports whether two tokens name the same version. This is the
// stale-pin predicate: a pinned version that is not Equal to the live
// version is stale.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Compare returns -1, 0 or +1 as a orders before, equal to, or after b.
func Compare(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return 0
	}
	if va, vb := "v"+a, "v"+b; semver.IsValid(va) && semver.IsValid(vb) {
		if c := semver.Compare(va, vb); c != 0 {
			return c
		}
		// Equal under semver ("1.0" vs "1.0.0"); keep the order total.
		return strings.Compare(a, b)
	}
	sa, sb := segments(a), segments(b)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if c := compareSegment(sa[i], sb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(sa) < len(sb):
		return -1
	case len(sa) > len(sb):
		return 1
	}
	return strings.Compare(a, b)
}

// Less reports whether a orders strictly before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func segments(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '+' || r == '_'
	})
}

func compareSegment(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		// Numeric segments sort before textual ones ("1.0" < "1.beta").
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
