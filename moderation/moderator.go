// Package moderation masks banned words in message content before it is stored and fanned out.
package moderation

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

const DefaultMask = '*'

// Moderator is safe for concurrent use once built: the automaton is only read.
type Moderator struct {
	log     *slog.Logger
	matcher *goahocorasick.Machine
	mask    rune
}

// textMapping keeps, for every rune of the searchable text, its index in the original content.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the automaton from the banned words. Words that normalize to
// nothing (pure punctuation, blanks) are ignored. An empty dictionary yields a
// Moderator that never changes anything.
func NewModerator(log *slog.Logger, words []string, mask rune) (*Moderator, error) {
	patterns := lo.Filter(lo.Map(words, func(w string, _ int) []rune {
		return normalizeRunes([]rune(strings.TrimSpace(w)))
	}), func(p []rune, _ int) bool { return len(p) > 0 })

	m := &Moderator{log: log.With("component", "moderator"), mask: mask}
	if len(patterns) == 0 {
		return m, nil
	}
	m.matcher = new(goahocorasick.Machine)
	if err := m.matcher.Build(patterns); err != nil {
		return nil, err
	}
	return m, nil
}

// Censor masks every banned word found in content, keeping the surrounding spacing and
// punctuation. It returns the masked content and the matched words in order of appearance.
func (m *Moderator) Censor(content string) (string, []string) {
	if m.matcher == nil {
		return content, nil
	}
	mapping := normalize(content)
	if len(mapping.normalized) == 0 {
		return content, nil
	}
	hits := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(hits) == 0 {
		return content, nil
	}

	runes := []rune(content)
	var words []string
	for _, hit := range hits {
		start, end := hit.Pos, hit.Pos+len(hit.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			runes[i] = m.mask
		}
		words = append(words, string(hit.Word))
	}

	m.log.Debug("Content censored",
		"words", len(words),
		"lang", whatlanggo.DetectLang(content).Iso6391())
	return string(runes), words
}

func normalize(input string) textMapping {
	runes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(runes)),
		origIdx:    make([]int, 0, len(runes)),
	}
	for i, r := range runes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leet substitutions back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
