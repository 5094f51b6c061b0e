package wiki

import (
	"regexp"
	"strings"
)

var (
	commentRE      = regexp.MustCompile(`(?s)<!--.*?-->`)
	headingRE      = regexp.MustCompile(`(?m)^=+.*$`)
	listLineRE     = regexp.MustCompile(`(?m)^[*#;:].*$`)
	magicWordRE    = regexp.MustCompile(`__[A-Z]+__`)
	boldSpanRE     = regexp.MustCompile(`'''[^\n]*?'''`)
	italicSpanRE   = regexp.MustCompile(`''[^\n]*?''`)
	wikiLinkRE     = regexp.MustCompile(`\[\[([^\[\]]*)\]\]`)
	externalLinkRE = regexp.MustCompile(`\[(?:https?|ftp)://[^ \]]*( [^\]]*)?\]`)
	leftoverTagRE  = regexp.MustCompile(`<[^>\n]*>`)
)

// blockTags are removed together with their contents
var blockTags = []string{
	"ref", "gallery", "timeline", "math", "source", "syntaxhighlight",
	"code", "pre", "nowiki", "score", "hiero", "imagemap",
}

var blockTagREs = buildBlockTagREs()

func buildBlockTagREs() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, 2*len(blockTags))
	for _, tag := range blockTags {
		res = append(res,
			regexp.MustCompile(`(?si)<`+tag+`[^>/]*>.*?</`+tag+`\s*>`),
			regexp.MustCompile(`(?i)<`+tag+`[^>]*/>`),
		)
	}
	return res
}

// StripWikitext reduces raw wiki markup to plain text. Templates, tables,
// reference blocks, headings, file links and list items disappear entirely;
// ordinary wikilinks and external links collapse to their visible labels.
func StripWikitext(text string) string {
	text = commentRE.ReplaceAllString(text, "")
	text = stripNested(text, "{{", "}}")
	text = stripNested(text, "{|", "|}")
	for _, re := range blockTagREs {
		text = re.ReplaceAllString(text, "")
	}
	text = stripFileLinks(text)
	text = headingRE.ReplaceAllString(text, "")
	text = boldSpanRE.ReplaceAllString(text, "")
	text = italicSpanRE.ReplaceAllString(text, "")
	text = collapseWikiLinks(text)
	text = externalLinkRE.ReplaceAllString(text, "$1")
	text = listLineRE.ReplaceAllString(text, "")
	text = leftoverTagRE.ReplaceAllString(text, "")
	text = magicWordRE.ReplaceAllString(text, "")
	return text
}

// stripNested removes every region between open and clos, tracking nesting.
// Text after an unbalanced opener is dropped.
func stripNested(text, open, clos string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], open):
			depth++
			i += len(open)
		case depth > 0 && strings.HasPrefix(text[i:], clos):
			depth--
			i += len(clos)
		default:
			if depth == 0 {
				b.WriteByte(text[i])
			}
			i++
		}
	}
	return b.String()
}

// stripFileLinks removes [[File:...]] and [[Image:...]] links, whose bodies
// may contain nested wikilinks
func stripFileLinks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "[[") && isFileLink(text[i+2:]) {
			i += 2
			depth := 1
			for i < len(text) && depth > 0 {
				switch {
				case strings.HasPrefix(text[i:], "[["):
					depth++
					i += 2
				case strings.HasPrefix(text[i:], "]]"):
					depth--
					i += 2
				default:
					i++
				}
			}
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func isFileLink(rest string) bool {
	trimmed := strings.TrimLeft(rest, " ")
	return strings.HasPrefix(trimmed, "File:") || strings.HasPrefix(trimmed, "Image:")
}

// collapseWikiLinks rewrites [[target|label]] to label and [[target]] to
// target, innermost links first
func collapseWikiLinks(text string) string {
	for {
		replaced := wikiLinkRE.ReplaceAllStringFunc(text, func(match string) string {
			content := match[2 : len(match)-2]
			if _, label, found := strings.Cut(content, "|"); found {
				return label
			}
			return content
		})
		if replaced == text {
			return replaced
		}
		text = replaced
	}
}
