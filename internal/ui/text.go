package ui

// shortIDLen is the number of runes of a task id shown in tables.
const shortIDLen = 8

// TruncateWithEllipsis truncates text to maxRunes and appends an ellipsis when needed.
func TruncateWithEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "…"
}

// ShortID returns the leading runes of a task id for display in the history
// table. Backend ids are UUIDs, whose first group is unique enough to tell
// recent tasks apart.
func ShortID(id string) string {
	r := []rune(id)
	if len(r) <= shortIDLen {
		return id
	}
	return string(r[:shortIDLen])
}
