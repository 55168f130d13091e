package sentiment

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/go-ego/gse"
)

// entryFreq is the dictionary frequency of every lexicon entry. Equal
// frequencies make the segmenter prefer the fewest tokens, so whole
// phrases win over their parts.
const entryFreq = 1000

// Lexicon is a dictionary-based estimator for Chinese text. Text is cut by
// a gse DAG segmenter over the lexicon entries and each token is looked up
// whole. Idioms listed as neutral stay single tokens, so 不好意思 never
// scores as 不好.
type Lexicon struct {
	positive  map[string]struct{}
	negative  map[string]struct{}
	neutral   map[string]struct{}
	modifiers map[string]float64
	negations map[string]struct{}
	seg       *gse.Segmenter
}

// LexiconTables holds the word lists behind a Lexicon.
type LexiconTables struct {
	Positive  []string           `json:"positive"`
	Negative  []string           `json:"negative"`
	Neutral   []string           `json:"neutral"`
	Modifiers map[string]float64 `json:"modifiers"`
	Negations []string           `json:"negations"`
}

// DefaultLexiconTables returns the built-in customer-service dictionary.
func DefaultLexiconTables() LexiconTables {
	return LexiconTables{
		Positive: []string{
			"好", "棒", "不错", "满意", "喜欢", "开心", "高兴", "赞", "优秀", "完美",
			"太好了", "太棒了", "很好", "非常好", "特别好", "真好", "真棒", "真不错",
			"谢谢", "感谢", "惊喜", "超赞", "给力", "牛", "厉害", "优质", "精彩",
		},
		Negative: []string{
			"差", "烂", "不好", "失望", "生气", "愤怒", "讨厌", "糟糕", "垃圾", "恶心",
			"太差了", "太烂了", "很差", "非常差", "特别差", "真差", "真烂", "真不好",
			"投诉", "退货", "退款", "问题", "麻烦", "坑爹", "黑心", "欺骗", "骗人",
		},
		Neutral: []string{
			"一般", "还行", "凑合", "普通", "平常", "常规", "标准", "正常", "可以",
			"不好意思", "没关系", "不客气", "没问题", "不用谢", "不要紧", "没事",
		},
		Modifiers: map[string]float64{
			"非常": 1.5, "特别": 1.5, "超级": 1.5, "极其": 1.8, "超": 1.3,
			"很": 1.2, "太": 1.4, "真": 1.2, "好": 1.1, "挺": 1.1,
			"有点": 0.8, "稍微": 0.7, "略": 0.7, "还": 0.9,
		},
		Negations: []string{"不", "没", "无", "非", "未", "否", "别", "莫"},
	}
}

// NewLexicon builds a Lexicon from tables and loads its entries into the
// segmenter dictionary.
func NewLexicon(t LexiconTables) (*Lexicon, error) {
	l := &Lexicon{
		positive:  toSet(t.Positive),
		negative:  toSet(t.Negative),
		neutral:   toSet(t.Neutral),
		modifiers: make(map[string]float64, len(t.Modifiers)),
		negations: toSet(t.Negations),
	}
	for w, m := range t.Modifiers {
		l.modifiers[w] = m
	}

	entries := make(map[string]struct{})
	for _, set := range []map[string]struct{}{l.positive, l.negative, l.neutral, l.negations} {
		for w := range set {
			entries[w] = struct{}{}
		}
	}
	for w := range l.modifiers {
		entries[w] = struct{}{}
	}

	lines := make([]string, 0, len(entries))
	for w := range entries {
		if w = strings.TrimSpace(w); w == "" || strings.ContainsAny(w, " \t\n") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %d", w, entryFreq))
	}
	if len(lines) > 0 {
		slices.Sort(lines)
		l.seg = new(gse.Segmenter)
		if err := l.seg.LoadDictStr(strings.Join(lines, "\n")); err != nil {
			return nil, fmt.Errorf("load lexicon dictionary: %w", err)
		}
	}
	return l, nil
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Name implements Estimator.
func (l *Lexicon) Name() string { return "lexicon" }

// Estimate implements Estimator.
func (l *Lexicon) Estimate(text string) (Estimate, error) {
	var pos, neg float64
	intensity := 1.0
	negated := false

	for _, w := range l.segment(text) {
		if m, ok := l.modifiers[w]; ok {
			intensity = m
			continue
		}
		if _, ok := l.negations[w]; ok {
			negated = true
			continue
		}
		_, isPos := l.positive[w]
		_, isNeg := l.negative[w]
		switch {
		case isPos && !negated, isNeg && negated:
			pos += intensity
		case isNeg, isPos:
			neg += intensity
		}
		intensity = 1.0
		negated = false
	}

	est := Estimate{Label: Neutral, Source: l.Name()}
	if total := pos + neg; total > 0 {
		est.Score = (pos - neg) / total
		est.Label = labelFor(est.Score)
	}
	est.Confidence = math.Min(math.Abs(est.Score)+0.3, 1.0)
	return est, nil
}

// segment cuts text without HMM, so characters outside the dictionary
// come out as single-rune tokens.
func (l *Lexicon) segment(text string) []string {
	if l.seg == nil {
		return strings.Split(text, "")
	}
	return l.seg.Cut(text, false)
}
