package relay

import (
	"strings"
	"unicode/utf8"

	"github.com/tinyland-inc/crossbridge/pkg/bus"
)

// renderContent builds the relayed text: a bold author header naming the
// origin server, then the original content on the next line.
func renderContent(msg bus.InboundMessage) string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(escapeMarkdown(msg.AuthorName))
	b.WriteString("**")
	if msg.GuildName != "" {
		b.WriteString(" from ")
		b.WriteString(msg.GuildName)
	}
	b.WriteString(":\n")
	b.WriteString(msg.Content)
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`~`, `\~`,
	`|`, `\|`,
)

// escapeMarkdown keeps a display name like "*star*" from breaking the bold header.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// splitMessage cuts content into chunks of at most limit runes, preferring
// to break after a newline, then after a space. limit <= 0 disables splitting.
func splitMessage(content string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return []string{content}
	}

	var chunks []string
	runes := []rune(content)
	for len(runes) > limit {
		cut := lastBreak(runes[:limit], '\n')
		if cut == 0 {
			cut = lastBreak(runes[:limit], ' ')
		}
		if cut == 0 {
			cut = limit
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// lastBreak returns the index just past the last sep in window, or 0.
func lastBreak(window []rune, sep rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == sep {
			return i + 1
		}
	}
	return 0
}
