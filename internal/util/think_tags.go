package util

import (
	"regexp"
	"strings"
)

// Some providers return the reasoning trace inline in the content instead of
// the reasoning_content field. These patterns recognize the common formats.
var (
	thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	// Some Chinese models tag reasoning as <思考>
	chineseThinkTagRegex = regexp.MustCompile(`(?i)<思考>([\s\S]*?)</思考>`)
)

// ContainsThinkTags checks if the response carries inline think/reasoning tags
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response) || chineseThinkTagRegex.MatchString(response)
}

// ExtractThinkContent extracts only the content within think/reasoning tags.
// Returns empty string if no think tags found.
func ExtractThinkContent(response string) string {
	var thinkContent []string

	matches := thinkTagRegex.FindAllStringSubmatch(response, -1)
	for _, match := range matches {
		if len(match) > 1 {
			thinkContent = append(thinkContent, strings.TrimSpace(match[1]))
		}
	}

	chineseMatches := chineseThinkTagRegex.FindAllStringSubmatch(response, -1)
	for _, match := range chineseMatches {
		if len(match) > 1 {
			thinkContent = append(thinkContent, strings.TrimSpace(match[1]))
		}
	}

	return strings.Join(thinkContent, "\n\n")
}
