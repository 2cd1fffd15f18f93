package dispatch

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

const (
	DefaultTargetLength = 500
	DefaultMaxLength    = 4096 // Telegram hard limit
)

var (
	paragraphBreak = regexp.MustCompile(`\n\n+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Split breaks text into chunks of at most maxLength UTF-16 code units (the
// unit Telegram counts message length in), preferring
// paragraph boundaries, then sentence boundaries, aiming for targetLength.
// Non-positive limits select the defaults; targetLength is clamped below maxLength.
func Split(text string, targetLength, maxLength int) []string {
	targetLength, maxLength = normalizeLimits(targetLength, maxLength)

	if textLen(text) <= targetLength {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	current := ""
	flush := func() {
		if c := strings.TrimSpace(current); c != "" {
			chunks = append(chunks, c)
		}
		current = ""
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		joined := para
		if current != "" {
			joined = current + "\n\n" + para
		}
		if textLen(joined) <= targetLength {
			current = joined
			continue
		}

		flush()
		if textLen(para) <= targetLength {
			current = para
			continue
		}
		chunks = append(chunks, splitSentences(para, targetLength, maxLength)...)
	}
	flush()

	return chunks
}

func normalizeLimits(target, max int) (int, int) {
	if max <= 0 {
		max = DefaultMaxLength
	}
	if target <= 0 {
		target = DefaultTargetLength
	}
	if target >= max {
		target = max - 1
	}
	return target, max
}

// splitSentences accumulates the sentences of one oversized paragraph.
func splitSentences(para string, target, max int) []string {
	var out []string
	current := ""
	flush := func() {
		if c := strings.TrimSpace(current); c != "" {
			out = append(out, c)
		}
		current = ""
	}

	for _, s := range sentences(para) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if textLen(current)+textLen(s) <= target {
			current += s
			continue
		}
		flush()
		if textLen(s) > max {
			out = append(out, forceSplit(s, max)...)
			continue
		}
		current = s
	}
	flush()

	return out
}

// sentences cuts text after every run of terminal punctuation followed by
// whitespace; the delimiter and whitespace stay with the preceding sentence.
func sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// forceSplit cuts s into pieces of at most max UTF-16 units, ignoring word
// boundaries. Cuts fall between runes, so a surrogate pair is never halved.
func forceSplit(s string, max int) []string {
	var out []string
	emit := func(piece string) {
		if piece = strings.TrimSpace(piece); piece != "" {
			out = append(out, piece)
		}
	}

	start, units := 0, 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if units+n > max && i > start {
			emit(s[start:i])
			start, units = i, 0
		}
		units += n
	}
	emit(s[start:])
	return out
}

// textLen is the length of s in UTF-16 code units.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
