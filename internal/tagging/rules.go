package tagging

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Rule maps a tag to the keywords and patterns that signal it.
type Rule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Patterns []string `json:"patterns,omitempty"`
}

// RuleSet is the loadable rule table. Rules are evaluated in order and
// conflict pairs resolve by dropping the second member.
type RuleSet struct {
	Rules     []Rule      `json:"rules"`
	Conflicts [][2]string `json:"conflicts,omitempty"`
}

// DefaultConflicts returns the mutually exclusive tag pairs.
func DefaultConflicts() [][2]string {
	return [][2]string{
		{"high_intent", "low_intent"},
		{"price_sensitive", "price_insensitive"},
		{"decisive", "hesitant"},
		{"polite", "direct"},
	}
}

// DefaultRuleSet returns the built-in customer-service tag table.
// Discount words signal price sensitivity only, not purchase intent.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{Name: "high_intent", Keywords: []string{"想买", "购买", "下单", "要多少钱", "价格"},
				Patterns: []string{`什么时候.*买`, `想.*了解`, `需要.*个`}},
			{Name: "low_intent", Keywords: []string{"看看", "了解", "随便问问", "先看看"},
				Patterns: []string{`先.*看看`, `随便.*问`}},
			{Name: "price_sensitive", Keywords: []string{"便宜", "打折", "优惠", "促销", "活动", "降价", "性价比"},
				Patterns: []string{`有.*优惠`, `多少.*钱`, `价格.*怎么样`}},
			{Name: "price_insensitive", Keywords: []string{"品质", "质量", "高端", "奢侈", "不在乎价格"},
				Patterns: []string{`质量.*怎么样`, `品质.*如何`}},
			{Name: "electronics_lover", Keywords: []string{"手机", "电脑", "数码", "电子产品", "科技"},
				Patterns: []string{`手机`, `电脑`, `数码`}},
			{Name: "fashion_lover", Keywords: []string{"衣服", "鞋子", "包包", "时尚", "潮流", "搭配"},
				Patterns: []string{`衣服`, `时尚`, `搭配`}},
			{Name: "frequent_buyer", Keywords: []string{"经常买", "老客户", "之前买过", "又来了"},
				Patterns: []string{`经常.*买`, `之前.*买过`}},
			{Name: "new_customer", Keywords: []string{"第一次", "新客户", "刚知道", "朋友推荐"},
				Patterns: []string{`第一次.*买`, `刚.*知道`}},
			{Name: "polite", Keywords: []string{"请问", "谢谢", "麻烦", "不好意思", "劳烦"},
				Patterns: []string{`请.*问`, `谢谢`, `不好意思`}},
			{Name: "direct", Keywords: []string{"直接", "快点", "简单说", "别废话"},
				Patterns: []string{`直接.*说`, `快.*点`, `简单.*说`}},
			{Name: "decisive", Keywords: []string{"马上要", "立即", "现在就", "赶紧"},
				Patterns: []string{`马上.*要`, `立即`, `现在.*就`}},
			{Name: "hesitant", Keywords: []string{"考虑", "想想", "犹豫", "再看看", "不确定"},
				Patterns: []string{`考虑.*一下`, `想.*想`, `再.*看看`}},
			{Name: "complaint", Keywords: []string{"投诉", "退货", "退款", "差评", "质量问题"},
				Patterns: []string{`要.*投诉`, `怎么.*退`}},
			{Name: "disappointed", Keywords: []string{"失望", "太差了", "后悔", "上当"},
				Patterns: []string{`太.*失望`}},
		},
		Conflicts: DefaultConflicts(),
	}
}

// LoadRules reads a rule table from a JSON file. A file without
// conflicts uses the default pairs.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read tag rules: %w", err)
	}
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse tag rules: %w", err)
	}
	if len(rs.Conflicts) == 0 {
		rs.Conflicts = DefaultConflicts()
	}
	return rs, nil
}

type compiledRule struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
}

func compileRule(r Rule) (compiledRule, error) {
	if r.Name == "" {
		return compiledRule{}, fmt.Errorf("compile tag rule: empty name")
	}
	cr := compiledRule{name: r.Name}
	for _, k := range r.Keywords {
		cr.keywords = append(cr.keywords, strings.ToLower(k))
	}
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return compiledRule{}, fmt.Errorf("compile tag rule %s: %w", r.Name, err)
		}
		cr.patterns = append(cr.patterns, re)
	}
	return cr, nil
}

// matches counts keyword and pattern hits in an already case-folded message.
func (cr compiledRule) matches(folded string) (keywords, patterns int) {
	for _, k := range cr.keywords {
		if strings.Contains(folded, k) {
			keywords++
		}
	}
	for _, re := range cr.patterns {
		if re.MatchString(folded) {
			patterns++
		}
	}
	return keywords, patterns
}
