package permission

import (
	"slices"
	"strings"
)

// Set is a set of granted permission codes. The zero value denies everything.
type Set map[string]struct{}

// NewSet builds a Set from codes, skipping blanks.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	s.Add(codes...)
	return s
}

// Add inserts codes into the set.
func (s Set) Add(codes ...string) {
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			s[c] = struct{}{}
		}
	}
}

// Contains reports raw membership, without wildcard expansion.
func (s Set) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes sorted.
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// HasPermission reports whether granted allows code.
func HasPermission(granted Set, code string) bool {
	if len(granted) == 0 || code == "" {
		return false
	}
	if granted.Contains(Wildcard) {
		return true
	}
	return granted.Contains(code)
}

// HasAllPermissions reports whether granted allows every code. An empty code list is
// denied.
func HasAllPermissions(granted Set, codes []string) bool {
	if len(granted) == 0 || len(codes) == 0 {
		return false
	}
	for _, c := range codes {
		if !HasPermission(granted, c) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether granted allows at least one code.
func HasAnyPermission(granted Set, codes []string) bool {
	for _, c := range codes {
		if HasPermission(granted, c) {
			return true
		}
	}
	return false
}
