package textutil

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeSlug converts a string to a lowercase slug. Letters and digits are
// kept, runs of anything else collapse into a single hyphen. Returns "" when
// nothing usable remains.
func NormalizeSlug(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	lastHyphen := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// CheckIdentifier rejects empty values and values with control characters.
// It deliberately accepts path separators: containment is enforced where the
// value is joined onto a filesystem root.
func CheckIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", field)
		}
	}
	if len(value) > 255 {
		return fmt.Errorf("%s exceeds 255 bytes", field)
	}
	return nil
}
