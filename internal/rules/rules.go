package rules

import (
	"strings"

	"github.com/mikey/llm-phish-detector/internal/core"
)

// SuspiciousKeywords is the bilingual phrase dictionary used for keyword scoring
var SuspiciousKeywords = []string{
	"紧急", "账户异常", "验证", "密码", "限时", "点击链接", "确认信息", "支付失败", "安全更新", "复核账户",
	"urgent", "verify", "password", "click here", "account locked", "security update", "confirm",
}

const (
	keywordWeight = 10
	urlWeight     = 8
	maxScore      = 100
)

var extensionWeights = map[string]int{}

func init() {
	for _, ext := range []string{"exe", "js", "vbs", "ps1", "bat", "cmd", "scr", "jar", "hta", "pkg"} {
		extensionWeights[ext] = 40
	}
	for _, ext := range []string{"doc", "docm", "xls", "xlsm", "pptm"} {
		extensionWeights[ext] = 25
	}
	for _, ext := range []string{"zip", "rar", "7z"} {
		extensionWeights[ext] = 15
	}
}

// Scorer implements core.RuleScorer. It has no state; the zero value is ready to use.
type Scorer struct{}

// NewScorer creates a new rule scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the keyword, URL and attachment scores of an email
func (s *Scorer) Score(email *core.ParsedEmail) core.RuleScore {
	if email == nil {
		return core.RuleScore{}
	}
	return core.RuleScore{
		Keyword:    KeywordScore(email.Text),
		URL:        URLScore(email.URLs),
		Attachment: AttachmentScore(email.Attachments),
	}
}

// KeywordScore awards 10 points per dictionary phrase present in the text
func KeywordScore(text string) int {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	count := 0
	for _, kw := range SuspiciousKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			count++
		}
	}
	return min(maxScore, count*keywordWeight)
}

// URLScore awards 8 points per distinct URL
func URLScore(urls []string) int {
	if len(urls) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	return min(maxScore, len(seen)*urlWeight)
}

// AttachmentScore sums the per-extension weight of every attachment
func AttachmentScore(attachments []string) int {
	score := 0
	for _, name := range attachments {
		score += ExtensionWeight(name)
	}
	return min(maxScore, score)
}

// ExtensionWeight returns the risk weight of a filename's extension
func ExtensionWeight(name string) int {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return 5
	}
	if w, ok := extensionWeights[strings.ToLower(name[idx+1:])]; ok {
		return w
	}
	return 5
}
