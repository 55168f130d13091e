package knowledge

import "strings"

var typeKeywords = []struct {
	typ      Type
	keywords []string
}{
	{TypeProduct, []string{"商品信息", "产品参数", "规格说明", "商品", "价格"}},
	{TypeFAQ, []string{"常见问题", "使用说明", "故障排除"}},
	{TypePolicy, []string{"购买政策", "退换货政策", "服务条款"}},
	{TypeScript, []string{"销售话术", "客服话术", "沟通技巧"}},
}

// Classify returns the first knowledge type whose keywords appear in text.
func Classify(text string) Type {
	folded := strings.ToLower(text)
	for _, tk := range typeKeywords {
		for _, k := range tk.keywords {
			if strings.Contains(folded, k) {
				return tk.typ
			}
		}
	}
	return TypeGeneral
}
