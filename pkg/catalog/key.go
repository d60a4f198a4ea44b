package catalog

import "strings"

// DeriveServiceKey derives the catalog's stable lookup key from a service
// principal's display name by stripping everything that is not a letter or
// digit. When nothing survives the stripping, a SP_<id> key is synthesized
// from the object id so the result is never empty.
func DeriveServiceKey(displayName, objectID string) string {
	var b strings.Builder
	for _, r := range displayName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "SP_" + objectID
	}
	return b.String()
}

// NormalizeForMatch strips non-alphanumerics for punctuation-insensitive
// substring matching ("Microsoft Graph" matches "MicrosoftGraph").
func NormalizeForMatch(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
