package corrupt

import "strings"

// Drop reasons counted by the corruption stage
const (
	DropInvalidJSON  = "invalid_json"
	DropEmptyText    = "empty_text"
	DropTooShort     = "too_few_words"
	DropTruncated    = "truncated_text"
	DropEmptyCorrupt = "empty_corrupt"
)

// Clean normalizes whitespace and strips bytes that did not survive decoding
func Clean(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "�", "")
	return strings.Join(strings.Fields(text), " ")
}

// Validate reports why a cleaned paragraph cannot be used. The reason is empty
// for usable paragraphs.
func Validate(text string, minWords int) (string, bool) {
	if text == "" {
		return DropEmptyText, false
	}
	if strings.Contains(text, "...") || strings.ContainsRune(text, '…') {
		return DropTruncated, false
	}
	if len(strings.Fields(text)) < minWords {
		return DropTooShort, false
	}
	return "", true
}
