package identity

import "strings"

// PermissionSet is the parsed form of an API key's permission strings. The
// grammar is closed: "Category:Action", "Category:*" or "*". Parsing happens
// once at authentication time; matching is structural, not string splitting
// per check.
type PermissionSet struct {
	all        bool
	categories map[string]struct{}
	exact      map[string]struct{}
}

// ParsePermissions builds a PermissionSet from raw permission strings.
// Entries outside the grammar are ignored.
func ParsePermissions(raw []string) PermissionSet {
	set := PermissionSet{
		categories: make(map[string]struct{}),
		exact:      make(map[string]struct{}),
	}

	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			set.all = true
			continue
		}

		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		if parts[1] == "*" {
			set.categories[parts[0]] = struct{}{}
			continue
		}
		set.exact[parts[0]+":"+parts[1]] = struct{}{}
	}

	return set
}

// Allows reports whether the set grants the given category and action.
func (s PermissionSet) Allows(category, action string) bool {
	if s.all {
		return true
	}
	if _, ok := s.categories[category]; ok {
		return true
	}
	_, ok := s.exact[category+":"+action]
	return ok
}

// Empty reports whether the set grants nothing.
func (s PermissionSet) Empty() bool {
	return !s.all && len(s.categories) == 0 && len(s.exact) == 0
}
