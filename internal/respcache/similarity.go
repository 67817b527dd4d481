package respcache

import (
	"strings"
	"unicode"
)

// normalize lowercases s, drops every rune that is neither an ASCII word
// character nor whitespace, and trims the result.
func normalize(s string) string {
	lower := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is |A ∩ B| / |A ∪ B| over whitespace tokens. Two empty sets score 0.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// messagesText joins message contents with newlines. Roles and JSON
// structure are left out so they do not count as shared tokens.
func messagesText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// similarity averages prompt and message Jaccard scores.
func similarity(prompt, entryPrompt, messages, entryMessages string) float64 {
	promptSim := jaccard(normalize(prompt), normalize(entryPrompt))
	messagesSim := jaccard(normalize(messages), normalize(entryMessages))
	return (promptSim + messagesSim) / 2
}
