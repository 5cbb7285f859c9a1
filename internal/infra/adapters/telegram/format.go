package telegram

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Telegram rejects messages longer than this.
const maxMessageRunes = 4096

var (
	mdHeading = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBullet  = regexp.MustCompile(`(?m)^(\s*)[*+]\s+`)
	mdEmph    = regexp.MustCompile("(\\*\\*|__|\\*|`{1,3})")
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
)

// stripMarkdown turns model output into plain text. The system prompt asks
// for plain text already; models do not always comply.
func stripMarkdown(s string) string {
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "${1}- ")
	s = mdEmph.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// splitMessage cuts s into chunks of at most limit runes, preferring line
// breaks over spaces.
func splitMessage(s string, limit int) []string {
	r := []rune(s)
	if len(r) <= limit {
		return []string{s}
	}
	var out []string
	for len(r) > limit {
		cut := lastBreak(r[:limit])
		out = append(out, strings.TrimSpace(string(r[:cut])))
		r = r[cut:]
	}
	if rest := strings.TrimSpace(string(r)); rest != "" {
		out = append(out, rest)
	}
	return out
}

func lastBreak(r []rune) int {
	for _, sep := range []rune{'\n', ' '} {
		for i := len(r) - 1; i > len(r)/2; i-- {
			if r[i] == sep {
				return i + 1
			}
		}
	}
	return len(r)
}

// formatRemaining renders d as "1h 05m" or "3d 4h".
func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
