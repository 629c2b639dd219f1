package memory

import "regexp"

const (
	maxTags        = 20
	maxNameTagsAt  = 15
	maxPeopleNames = 5
)

var (
	hanRunPattern   = regexp.MustCompile(`\p{Han}{2,4}`)
	latinRunPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]{2,}`)
)

// ExtractTags returns the dictionary keywords found in content, in vocabulary
// order, followed by candidate proper nouns: 2-4 character Han runs and
// Latin words of three or more characters that are neither stop words nor
// keywords. Proper nouns are only added while fewer than 15 tags are held.
func ExtractTags(content string) []string {
	tags := make([]string, 0, 8)
	seen := map[string]struct{}{}
	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	counts := keywordCounts(content)
	for i, kw := range domainKeywords {
		if counts[i] > 0 {
			add(kw)
		}
	}

	names := append(hanRunPattern.FindAllString(content, -1), latinRunPattern.FindAllString(content, -1)...)
	for _, word := range names {
		if len(tags) >= maxNameTagsAt {
			break
		}
		if isStopWord(word) || isKeyword(word) {
			continue
		}
		add(word)
	}

	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

var categoryThemes = []struct {
	category Category
	keywords []string
}{
	{CategoryDevelopment, []string{"开发", "编程", "美术", "策划", "测试", "优化", "Bug", "修复", "立项", "制作", "Alpha", "Beta",
		"development", "programming", "testing", "optimization", "prototype", "patch", "hotfix"}},
	{CategoryFinance, []string{"资金", "预算", "收入", "支出", "利润", "亏损", "融资", "投资", "贷款", "成本",
		"funds", "budget", "revenue", "expense", "profit", "loss", "financing", "investment", "loan", "cost"}},
	{CategoryHR, []string{"招聘", "离职", "加班", "薪资", "晋升", "培训", "团建", "员工", "满意度",
		"hiring", "recruit", "resign", "overtime", "salary", "training", "employee", "morale"}},
	{CategoryMarketing, []string{"宣发", "营销", "推广", "广告", "销量", "热度", "评测", "口碑", "媒体",
		"marketing", "promotion", "advertising", "sales", "hype", "review", "media", "trailer"}},
	{CategoryCompetition, []string{"竞品", "对手", "同行", "合作", "收购", "并购",
		"competitor", "rival", "partnership", "acquisition", "merger"}},
	{CategoryCommunity, []string{"玩家", "社区", "反馈", "评论", "差评", "好评", "退款", "直播", "二创",
		"player", "community", "feedback", "comment", "refund", "stream", "fans"}},
	{CategoryEvent, []string{"危机", "舆论", "版号", "审核", "政策", "趋势", "事件",
		"crisis", "scandal", "license", "policy", "trend", "event"}},
}

// InferCategory picks the first theme, in fixed priority order, that content
// or tags mention.
func InferCategory(content string, tags []string) Category {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	for _, theme := range categoryThemes {
		for _, kw := range theme.keywords {
			if _, ok := tagSet[kw]; ok || containsKeyword(content, kw) {
				return theme.category
			}
		}
	}
	return CategoryOther
}

// peopleFromTags keeps the first few non-keyword tags as likely names.
func peopleFromTags(tags []string) []string {
	var people []string
	for _, t := range tags {
		if len(people) == maxPeopleNames {
			break
		}
		if !isKeyword(t) {
			people = append(people, t)
		}
	}
	return people
}
