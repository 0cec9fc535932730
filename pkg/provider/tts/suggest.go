package tts

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// phoneticThreshold is the Jaro-Winkler floor for names that also share a
	// Double Metaphone code with a voice.
	phoneticThreshold = 0.70

	// fuzzyThreshold is the floor for spelling-only matches.
	fuzzyThreshold = 0.85
)

// SuggestVoice returns the catalogue voice closest to name, for "did you mean"
// hints after [ParseVoice] fails. A voice that sounds alike wins over one that
// is only spelled alike. ok is false when nothing is close enough.
func SuggestVoice(name string) (v Voice, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	codes := metaphone(name)

	var (
		best     Voice
		score    float64
		phonetic bool
	)
	for _, c := range catalogue {
		jw := matchr.JaroWinkler(name, string(c), false)
		if sharesCode(codes, metaphone(string(c))) {
			if jw >= phoneticThreshold && (!phonetic || jw > score) {
				best, score, phonetic = c, jw, true
			}
		} else if !phonetic && jw >= fuzzyThreshold && jw > score {
			best, score = c, jw
		}
	}
	return best, best != ""
}

func metaphone(s string) [2]string {
	p, alt := matchr.DoubleMetaphone(s)
	return [2]string{p, alt}
}

func sharesCode(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
