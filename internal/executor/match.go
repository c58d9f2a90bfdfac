package executor

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/antonkk/formpilot/api/schemas"
)

// BestOption picks the option that should be activated for value. All
// options are scored and the best wins; match quality descends exact,
// case-insensitive exact, prefix, containment. A hint can promote fuzzy
// matching or name a fallback to use when nothing matches at all.
func BestOption(value string, options []string, hint *schemas.StrategyHint) (string, bool) {
	if len(options) == 0 {
		return "", false
	}

	if hint != nil && hint.FuzzyFirst {
		if opt, ok := fuzzyOption(value, options); ok {
			return opt, true
		}
	}

	best := ""
	bestScore := 0
	for _, opt := range options {
		if score := scoreOption(value, opt); score > bestScore {
			best, bestScore = opt, score
		}
	}
	if bestScore > 0 {
		return best, true
	}

	if opt, ok := fuzzyOption(value, options); ok {
		return opt, true
	}

	if hint != nil && hint.FallbackOption != "" {
		for _, opt := range options {
			if opt == hint.FallbackOption {
				return opt, true
			}
		}
	}
	return "", false
}

func scoreOption(value, opt string) int {
	if opt == value {
		return 100
	}
	lv := strings.ToLower(strings.TrimSpace(value))
	lo := strings.ToLower(strings.TrimSpace(opt))
	switch {
	case lo == lv:
		return 90
	case strings.HasPrefix(lo, lv):
		return 80
	case strings.Contains(lo, lv):
		return 70
	// The reverse direction needs whole words: "No" occurs inside "not to
	// say" but is not meant by it.
	case containsWord(lv, lo):
		return 60
	}
	return 0
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(s[start-1])
		afterOK := end == len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// fuzzyOption takes the top ranked subsequence match. fuzzy.Find only ranks
// options containing every rune of value in order, so a hit is already a
// strong signal.
func fuzzyOption(value string, options []string) (string, bool) {
	matches := fuzzy.Find(value, options)
	if len(matches) == 0 {
		return "", false
	}
	return options[matches[0].Index], true
}
