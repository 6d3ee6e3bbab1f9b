package telegram

import (
	"regexp"
	"strings"
)

var (
	boldPairPattern = regexp.MustCompile(`\\?\*\\?\*([\s\S]*?)\\?\*\\?\*`)
	reservedPattern = regexp.MustCompile("([\\[\\]()~`>#+\\-=|{}.,!])")
)

// FormatMarkdownV2 converts generic bold/italic markup (**bold**, _italic_) into
// Telegram MarkdownV2. The passes run in a fixed order; each one relies on the
// escapes produced by the previous passes.
func FormatMarkdownV2(source string) string {
	if source == "" {
		return ""
	}
	text := escapeBackslashes(source)
	text = strings.ReplaceAll(text, "*", `\*`)
	text = boldPairPattern.ReplaceAllString(text, "*${1}*")
	text = escapeItalicSpans(text)
	return reservedPattern.ReplaceAllString(text, `\${1}`)
}

// escapeBackslashes doubles every backslash that is not followed by a line feed.
func escapeBackslashes(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		c := text[i]
		b.WriteByte(c)
		if c == '\\' && (i+1 >= len(text) || text[i+1] != '\n') {
			b.WriteByte('\\')
		}
	}
	return b.String()
}

// escapeItalicSpans pairs unescaped underscores left to right into _italic_ spans.
// An underscore left without a partner is escaped as a literal.
func escapeItalicSpans(text string) string {
	if !strings.Contains(text, "_") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 4)
	inSpan := false
	spanStart := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '_' || isEscapedAt(text, i) {
			if !inSpan {
				b.WriteByte(c)
			}
			continue
		}
		if !inSpan {
			inSpan = true
			spanStart = i
			continue
		}
		b.WriteString(text[spanStart : i+1])
		inSpan = false
	}
	if inSpan {
		b.WriteString(`\_`)
		b.WriteString(text[spanStart+1:])
	}
	return b.String()
}

// isEscapedAt reports whether text[i] is preceded by an odd number of backslashes.
func isEscapedAt(text string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && text[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
