package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// KeywordRule maps a name (fact category or topic) to trigger keywords.
type KeywordRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Rules are the keyword tables used for fact and topic extraction.
// Order is significant: categories and topics are evaluated as declared.
type Rules struct {
	Categories []KeywordRule `json:"categories"`
	Topics     []KeywordRule `json:"topics"`
}

// DefaultRules returns the built-in customer-service keyword tables.
func DefaultRules() Rules {
	return Rules{
		Categories: []KeywordRule{
			{Name: "personal_info", Keywords: []string{"姓名", "电话", "地址", "邮箱", "年龄", "生日"}},
			{Name: "preferences", Keywords: []string{"喜欢", "不喜欢", "偏好", "习惯", "风格"}},
			{Name: "purchase_intent", Keywords: []string{"想买", "购买", "下单", "价格", "预算"}},
			{Name: "complaints", Keywords: []string{"投诉", "问题", "故障", "不满意", "退货", "退款"}},
			{Name: "compliments", Keywords: []string{"满意", "好评", "推荐", "赞", "棒", "不错"}},
			{Name: "product_interests", Keywords: []string{"关注", "了解", "咨询", "询问", "感兴趣"}},
		},
		Topics: []KeywordRule{
			{Name: "product", Keywords: []string{"商品", "产品", "手机", "电脑", "衣服", "鞋子"}},
			{Name: "price", Keywords: []string{"价格", "多少钱", "便宜", "贵", "优惠", "折扣"}},
			{Name: "shipping", Keywords: []string{"快递", "配送", "邮费", "运费", "发货", "物流"}},
			{Name: "service", Keywords: []string{"服务", "客服", "售后", "维修", "保修"}},
			{Name: "payment", Keywords: []string{"付款", "支付", "结账", "订单", "下单"}},
			{Name: "complaint", Keywords: []string{"投诉", "问题", "故障", "不满意", "退货"}},
		},
	}
}

// LoadRules reads a JSON rule file. Empty sections fall back to defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read memory rules %s: %w", path, err)
	}
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse memory rules %s: %w", path, err)
	}
	d := DefaultRules()
	if len(r.Categories) == 0 {
		r.Categories = d.Categories
	}
	if len(r.Topics) == 0 {
		r.Topics = d.Topics
	}
	return r, nil
}

const generalTopic = "general"

var (
	phoneRe  = regexp.MustCompile(`1[3-9]\d{9}`)
	emailRe  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	amountRe = regexp.MustCompile(`(\d+(\.\d{1,2})?)\s*(元|块|万|千)`)
)

var certaintyWords = []string{"是", "确实", "肯定", "一定", "绝对"}

var politeWords = []string{"请", "谢谢", "不好意思", "麻烦", "劳烦"}
