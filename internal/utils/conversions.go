package utils

import "strings"

// ToStringSlice converts a decoded JSON claim value into a slice of strings.
// A single string is split on spaces, as scopes are.
func ToStringSlice(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(v)
	case []string:
		return v
	case []any:
		stringSlice := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
		return stringSlice
	default:
		return nil
	}
}

// ContainsAll reports whether every item of subset is present in set.
func ContainsAll(set, subset []string) bool {
	lookup := make(map[string]struct{}, len(set))
	for _, s := range set {
		lookup[s] = struct{}{}
	}
	for _, s := range subset {
		if _, ok := lookup[s]; !ok {
			return false
		}
	}
	return true
}
