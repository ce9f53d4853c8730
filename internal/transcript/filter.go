// Package transcript screens speech-to-text output for phrases the
// recognition model is known to invent on silent or noisy input.
package transcript

import "strings"

// denyList holds phrases the recognizer produces when it hallucinates,
// typically broadcast sign-offs picked up from its training data.
var denyList = []string{
	"MBC 뉴스 이덕영입니다",
	"시청해주셔서 감사합니다",
	"Thanks for watching",
	"자막",
}

// IsHallucination reports whether the transcript contains any deny-listed
// phrase. Matching is by substring: the junk phrases show up embedded in
// otherwise plausible text.
func IsHallucination(text string) bool {
	for _, phrase := range denyList {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Filter returns the transcript unchanged, or the empty string when it is
// judged a hallucination. Callers treat an empty result as "nothing said".
func Filter(text string) string {
	if IsHallucination(text) {
		return ""
	}
	return text
}
