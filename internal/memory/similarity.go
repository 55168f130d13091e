package memory

import (
	"strings"
	"unicode"
)

// tokenize splits text into lowercase word tokens on whitespace and
// punctuation. CJK runs are kept whole.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len([]rune(w)) > 1 { // skip single chars
			result = append(result, w)
		}
	}
	return result
}

// turnKeywords collects the keywords of a set of user turns: their word
// tokens plus any rule keyword they mention.
func (s *Store) turnKeywords(turns []Turn) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, t := range turns {
		if t.Speaker != SpeakerUser {
			continue
		}
		for _, w := range tokenize(t.Text) {
			keywords[w] = struct{}{}
		}
		lower := strings.ToLower(t.Text)
		for _, rule := range s.rules.Categories {
			for _, kw := range rule.Keywords {
				if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
					keywords[kw] = struct{}{}
				}
			}
		}
	}
	return keywords
}

// factMatches reports whether a fact relates to any of the keywords.
func factMatches(f Fact, keywords map[string]struct{}) bool {
	if _, ok := keywords[f.Keyword]; ok {
		return true
	}
	text := strings.ToLower(f.Text)
	for kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
