package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// ContentHash returns the dedup key of a fact.
func ContentHash(category, text, keyword string) string {
	sum := sha256.Sum256([]byte(category + text + keyword))
	return hex.EncodeToString(sum[:])
}

// extractFacts applies the category keyword rules to a message. Each
// sentence containing a keyword yields one fact. Matching ignores case.
func (s *Store) extractFacts(message string, at time.Time) []Fact {
	lower := strings.ToLower(message)
	sentences := strings.Split(message, "。")
	lowerSentences := strings.Split(lower, "。")

	var facts []Fact
	for _, rule := range s.rules.Categories {
		for _, kw := range rule.Keywords {
			lowerKw := strings.ToLower(kw)
			if kw == "" || !strings.Contains(lower, lowerKw) {
				continue
			}
			for i, sentence := range sentences {
				if i >= len(lowerSentences) || !strings.Contains(lowerSentences[i], lowerKw) {
					continue
				}
				text := strings.TrimSpace(sentence)
				facts = append(facts, Fact{
					ID:          ulid.Make().String(),
					Category:    rule.Name,
					Text:        text,
					Keyword:     kw,
					Confidence:  factConfidence(lowerSentences[i], lowerKw),
					Timestamp:   at,
					ContentHash: ContentHash(rule.Name, text, kw),
				})
			}
		}
	}
	return facts
}

// factConfidence scores how reliable an extracted sentence is.
func factConfidence(sentence, keyword string) float64 {
	conf := 0.5
	n := utf8.RuneCountInString(sentence)
	if n > 10 {
		conf += 0.2
	}
	if idx := strings.Index(sentence, keyword); idx >= 0 && n > 0 {
		pos := float64(utf8.RuneCountInString(sentence[:idx])) / float64(n)
		if pos < 0.3 {
			conf += 0.2
		}
	}
	for _, w := range certaintyWords {
		if strings.Contains(sentence, w) {
			conf += 0.1
			break
		}
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
