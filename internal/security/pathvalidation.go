// Package security sanitises user-provided identifiers before they reach the
// filesystem.
package security

import "strings"

// maxFilenameLen limits sanitised names to avoid overly long paths.
const maxFilenameLen = 128

// SanitizeFilename makes a safe filename from an arbitrary string such as a
// response label. Characters other than ASCII letters, digits, dot,
// underscore and dash become a single underscore, and leading or trailing
// dots and underscores are trimmed.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
