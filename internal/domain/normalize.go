package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lower-cases and trims an email address for comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PreferredName joins the public first and last names, falling back to the legal name
// when neither is set.
func PreferredName(legal string, publicFirst, publicLast *string) string {
	parts := make([]string, 0, 2)
	for _, p := range []*string{publicFirst, publicLast} {
		if p != nil {
			if v := NormalizeHumanName(*p); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return NormalizeHumanName(legal)
}

// CombineNames renders several names for a shared address: "A", "A and B", "A, B, and C".
func CombineNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	out := make([]string, len(names))
	copy(out, names)
	out[len(out)-1] = "and " + out[len(out)-1]
	return strings.Join(out, ", ")
}

// NamesMatch reports whether two legal names are the same after normalization.
func NamesMatch(a, b string) bool {
	return strings.EqualFold(NormalizeHumanName(a), NormalizeHumanName(b))
}
