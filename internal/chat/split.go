package chat

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the largest message Discord accepts.
const MaxMessageLen = 2000

// SplitMessage splits text into chunks of at most maxLen bytes. Chunks are
// cut at paragraph boundaries; a paragraph that is itself too long is
// split at newlines and, failing that, hard.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > maxLen {
			flush()
			chunks = append(chunks, chunkMessage(para, maxLen)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > maxLen {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

// chunkMessage splits text into chunks of at most maxLen bytes without
// splitting a UTF-8 sequence. It prefers breaking at newlines in the second
// half of a chunk.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cut := runeCut(text, maxLen)
		chunk := text[:cut]
		breakAt := -1
		for i := cut - 1; i >= maxLen/2; i-- {
			if chunk[i] == '\n' {
				breakAt = i
				break
			}
		}

		if breakAt >= 0 {
			chunks = append(chunks, text[:breakAt])
			text = text[breakAt+1:]
		} else {
			chunks = append(chunks, chunk)
			text = text[cut:]
		}
	}
	return chunks
}

// runeCut returns the largest index <= n at which s can be cut without
// splitting a rune. n must be less than len(s). A string that starts with
// an invalid sequence longer than n is cut at n.
func runeCut(s string, n int) int {
	for i := n; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return n
}
