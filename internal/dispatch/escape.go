package dispatch

import "strings"

// htmlEscaper replaces the only three characters Telegram's HTML mode reserves.
// strings.Replacer scans left to right without rescanning output, which gives
// the same result as escaping '&' first.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes text for use inside an HTML-mode message.
// It is not idempotent: already-escaped entities are escaped again.
func EscapeHTML(text string) string {
	if text == "" {
		return ""
	}
	return htmlEscaper.Replace(text)
}
