package memory

import (
	"regexp"
	"strings"
	"unicode"
)

// domainKeywords is the game-studio vocabulary. Its order fixes the layout of
// local term-frequency vectors, so entries are only ever appended.
var domainKeywords = []string{
	// production stages
	"立项", "预制作", "制作", "打磨", "发布", "上线", "更新", "维护",
	"Alpha", "Beta", "EA", "正式版", "补丁", "DLC", "热修复",
	// development work
	"开发", "编程", "美术", "策划", "测试", "优化", "Bug", "修复",
	"设计", "原型", "迭代", "重构", "联调", "集成", "部署",
	// genres
	"RPG", "FPS", "MOBA", "策略", "模拟", "冒险", "动作", "解谜",
	"沙盒", "生存", "恐怖", "竞速", "格斗", "音游", "卡牌",
	// people and management
	"招聘", "离职", "加班", "薪资", "晋升", "培训", "团建",
	"管理", "决策", "会议", "汇报", "考核", "激励",
	// finance
	"资金", "预算", "收入", "支出", "利润", "亏损", "融资",
	"投资", "贷款", "成本", "营收", "分红", "估值",
	// market
	"宣发", "营销", "推广", "广告", "预告", "试玩", "展会",
	"媒体", "评测", "口碑", "销量", "热度", "下载量",
	// community
	"玩家", "社区", "反馈", "评论", "差评", "好评", "退款",
	"直播", "二创", "UP主", "主播", "粉丝", "水军",
	// platforms
	"Steam", "WeGame", "Epic", "PS", "Xbox", "Switch", "手游",
	// competition
	"竞品", "对手", "同行", "合作", "收购", "并购",
	// events
	"危机", "舆论", "版号", "审核", "政策", "趋势", "风口",

	// English vocabulary
	"development", "programming", "art", "design", "testing", "optimization",
	"fix", "prototype", "release", "launch", "update", "patch", "hotfix",
	"refactor", "deploy", "strategy", "simulation", "adventure", "action",
	"puzzle", "sandbox", "survival", "horror", "racing", "fighting", "rhythm",
	"hiring", "recruit", "resign", "overtime", "salary", "promotion", "training",
	"morale", "meeting", "funds", "budget", "revenue", "expense", "profit", "loss",
	"financing", "investment", "loan", "cost", "valuation", "marketing",
	"advertising", "trailer", "demo", "expo", "media", "review", "reputation",
	"sales", "hype", "downloads", "player", "community", "feedback", "comment",
	"refund", "stream", "streamer", "fans", "mobile", "competitor", "rival",
	"partnership", "acquisition", "merger", "crisis", "scandal", "license",
	"policy", "trend",
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"的", "了", "是", "在", "有", "和", "与", "或", "也", "都", "就", "着", "被", "让",
		"把", "给", "从", "到", "向", "往", "对", "于", "为", "而", "但", "却", "因", "所",
		"这", "那", "它", "他", "她", "我", "你", "们", "自", "其", "此", "彼",
		"一", "个", "些", "很", "更", "最", "非", "不", "无", "没", "未",
		"the", "and", "for", "with", "that", "this", "from", "was", "were", "are",
		"has", "have", "had", "but", "not", "you", "your", "our", "their", "they",
		"them", "its", "into", "onto", "over", "under", "then", "than", "also",
		"just", "very", "more", "most", "some", "any", "all", "each", "been",
		"being", "will", "would", "can", "could", "should", "about", "after",
		"before", "again", "while", "what", "which", "who", "whom", "when",
		"where", "why", "how", "there", "here", "his", "her", "she", "him",
		"out", "off", "now", "new", "per", "via",
	} {
		stopWords[w] = struct{}{}
	}
	keywordIndex = make(map[string]int, len(domainKeywords))
	for i, kw := range domainKeywords {
		key := keywordKey(kw)
		if _, dup := keywordIndex[key]; !dup {
			keywordIndex[key] = i
		}
	}
}

// keywordIndex maps the lookup form of every keyword to its vocabulary slot.
var keywordIndex map[string]int

var latinWordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// keywordKey is the lookup form of a keyword: ASCII keywords compare
// case-insensitively, CJK keywords as written.
func keywordKey(kw string) string {
	if isASCII(kw) {
		return strings.ToLower(kw)
	}
	return kw
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

// lookupKeyword resolves a Latin word to a vocabulary slot, accepting a plain
// "s" plural for longer keywords.
func lookupKeyword(word string) (int, bool) {
	lw := strings.ToLower(word)
	if idx, ok := keywordIndex[lw]; ok {
		return idx, true
	}
	if len(lw) > 4 && strings.HasSuffix(lw, "s") {
		if idx, ok := keywordIndex[lw[:len(lw)-1]]; ok && isASCII(domainKeywords[idx]) {
			return idx, true
		}
	}
	return 0, false
}

func isKeyword(tag string) bool {
	if isASCII(tag) {
		_, ok := lookupKeyword(tag)
		return ok
	}
	_, ok := keywordIndex[tag]
	return ok
}

// keywordCounts returns occurrences per vocabulary slot. CJK and mixed
// keywords count as substrings, ASCII keywords as whole words. Mixed
// keywords such as "UP主" are matched case-sensitively.
func keywordCounts(text string) map[int]int {
	counts := map[int]int{}
	for i, kw := range domainKeywords {
		if isASCII(kw) {
			continue
		}
		if n := strings.Count(text, kw); n > 0 {
			counts[i] += n
		}
	}
	for _, word := range latinWordPattern.FindAllString(text, -1) {
		if idx, ok := lookupKeyword(word); ok && isASCII(domainKeywords[idx]) {
			counts[idx]++
		}
	}
	return counts
}

// containsKeyword reports whether text mentions kw under the same matching
// rules as keywordCounts.
func containsKeyword(text, kw string) bool {
	if !isASCII(kw) {
		return strings.Contains(text, kw)
	}
	want := strings.ToLower(kw)
	for _, word := range latinWordPattern.FindAllString(text, -1) {
		lw := strings.ToLower(word)
		if lw == want || (len(lw) > 4 && lw == want+"s") {
			return true
		}
	}
	return false
}
