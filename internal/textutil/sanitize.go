package textutil

import "strings"

// SanitizeIdentifier keeps case, ASCII letters, digits, '.', '-' and '_'.
// Runs of any other character collapse into a single underscore. Returns
// "unknown" when nothing usable remains.
func SanitizeIdentifier(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	lastUnderscore := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune(r)
			}
			lastUnderscore = true
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_.-")
	if out == "" {
		return "unknown"
	}
	return out
}
