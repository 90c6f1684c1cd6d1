package debounce

import "strings"

// Combine merges queued fragments into one turn text. A single fragment is
// returned unmodified; otherwise each fragment is trimmed and they are joined
// with one space, preserving arrival order. Fragments that trim to nothing
// are skipped so no double spaces appear.
func Combine(fragments []string) string {
	switch len(fragments) {
	case 0:
		return ""
	case 1:
		return fragments[0]
	}

	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if t := strings.TrimSpace(f); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
