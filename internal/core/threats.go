package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/llm-phish-detector/internal/advice"
)

// Threat names, in report order
const (
	ThreatSocialEngineering = "社会工程诱导"
	ThreatMaliciousLink     = "恶意链接"
	ThreatDangerousFile     = "危险附件"
	ThreatGeneratedText     = "生成文本伪装"
	ThreatBrand             = "品牌冒充"
	ThreatHomoglyph         = "域名同形异义"
	ThreatHeaderForgery     = "邮件头伪造"
)

const (
	headerForgerySeverity = 70
	excerptRunes          = 200
	notAvailable          = "N/A"
)

type threatInput struct {
	email     *ParsedEmail
	rules     RuleScore
	llm       SemanticScore
	summary   string
	brand     *BrandFinding
	homoglyph *HomoglyphFinding
	intel     *Intel
}

func newThreat(name string, severity int, vector string, affected []string, impact, sample string, evidence []string) ThreatFinding {
	return ThreatFinding{
		Name:           name,
		Severity:       SeverityFromScore(severity),
		Vector:         vector,
		Affected:       affected,
		Impact:         impact,
		Sample:         sample,
		Recommendation: advice.Recommendation(name),
		Evidence:       evidence,
	}
}

func buildThreats(in threatInput) []ThreatFinding {
	threats := []ThreatFinding{}
	r, l := in.rules, in.llm

	if r.Keyword >= 30 || l.SocialEngineering >= 30 {
		threats = append(threats, newThreat(ThreatSocialEngineering,
			max(r.Keyword, l.SocialEngineering),
			"钓鱼话术与敏感信息索取",
			[]string{"邮箱收件人", "账户登录接口"},
			"凭据泄露与账户接管",
			truncateRunes(in.email.Text, excerptRunes),
			[]string{
				fmt.Sprintf("关键词评分: %d", r.Keyword),
				fmt.Sprintf("社工评分: %d", l.SocialEngineering),
				"模型证据: " + orNA(l.Evidence),
			}))
	}

	if r.URL > 0 {
		sample := ""
		if len(in.email.URLs) > 0 {
			sample = in.email.URLs[0]
		}
		threats = append(threats, newThreat(ThreatMaliciousLink,
			max(r.URL, l.SemanticConsistency),
			"链接重定向与仿冒站点",
			[]string{"浏览器", "登录表单"},
			"会话劫持与凭据收集",
			sample,
			[]string{
				fmt.Sprintf("链接数量: %d", len(in.email.URLs)),
				fmt.Sprintf("URL评分: %d", r.URL),
				fmt.Sprintf("语义一致性: %d", l.SemanticConsistency),
			}))
	}

	if r.Attachment > 0 {
		sample := ""
		if len(in.email.Attachments) > 0 {
			sample = in.email.Attachments[0]
		}
		threats = append(threats, newThreat(ThreatDangerousFile,
			r.Attachment,
			"可执行或宏文档",
			[]string{"终端系统", "办公组件"},
			"代码执行与持久化",
			sample,
			[]string{
				"附件列表: " + strings.Join(in.email.Attachments, ", "),
				fmt.Sprintf("附件评分: %d", r.Attachment),
			}))
	}

	if l.StyleAnomaly >= 40 || l.LLMGeneratedProbability >= 40 {
		threats = append(threats, newThreat(ThreatGeneratedText,
			max(l.StyleAnomaly, l.LLMGeneratedProbability),
			"风格异常与模板化表述",
			[]string{"人机信任", "审阅流程"},
			"提高欺骗成功率",
			in.summary,
			[]string{
				fmt.Sprintf("风格异常: %d", l.StyleAnomaly),
				fmt.Sprintf("生成概率: %d", l.LLMGeneratedProbability),
			}))
	}

	if b := in.brand; b != nil {
		threats = append(threats, newThreat(ThreatBrand,
			b.Severity,
			"仿冒品牌名称与视觉相似域名",
			[]string{"品牌信誉", "用户信任"},
			"用户受骗与品牌侵权",
			b.Brand,
			[]string{
				"品牌名称: " + b.Brand,
				"官方域: " + orNA(b.OfficialDomain),
				"相似度评分: " + formatPercent(b.Similarity),
				fmt.Sprintf("编辑距离: %d", b.EditDistance),
				"WHOIS注册商: " + whoisField(in.intel, in.intel.Whois.Registrar),
				"WHOIS注册时间: " + whoisField(in.intel, in.intel.Whois.CreationDate),
				"证书CN: " + sslField(in.intel, in.intel.SSL.SubjectCN),
				"证书颁发者: " + sslField(in.intel, in.intel.SSL.IssuerCN),
				fmt.Sprintf("CT条目数: %d", len(in.intel.CT.Entries)),
				"证据内容: " + b.Excerpt,
			}))
	}

	if h := in.homoglyph; h != nil {
		threats = append(threats, newThreat(ThreatHomoglyph,
			h.Severity,
			"字符同形混淆与视觉相似",
			[]string{"浏览器地址栏", "域名解析"},
			"引导访问仿冒站点",
			h.Domain,
			[]string{
				"原始域名: " + h.Domain,
				"归一域名: " + h.Normalized,
				"WHOIS注册商: " + whoisField(in.intel, in.intel.Whois.Registrar),
				"WHOIS注册时间: " + whoisField(in.intel, in.intel.Whois.CreationDate),
				"证书CN: " + sslField(in.intel, in.intel.SSL.SubjectCN),
				fmt.Sprintf("CT条目数: %d", len(in.intel.CT.Entries)),
				"视觉相似度: " + formatPercent(h.Similarity),
			}))
	}

	meta := in.email.Meta
	auth := meta.Header("Authentication-Results")
	dkim := meta.Header("DKIM-Signature")
	if headersForged(auth, dkim) {
		dkimState := "缺失"
		if dkim != "" {
			dkimState = "存在"
		}
		threats = append(threats, newThreat(ThreatHeaderForgery,
			headerForgerySeverity,
			"认证失败或缺失",
			[]string{"邮件网关", "收件人"},
			"冒充发件域与绕过过滤",
			meta.Header("From"),
			[]string{
				"邮件头: 完整记录",
				"SPF: " + orNA(meta.Header("Received-SPF")),
				"DKIM: " + dkimState,
				"认证结果: " + orNA(auth),
			}))
	}

	return threats
}

// headersForged reports missing or failing sender authentication.
// "softfail" contains "fail", so one substring test covers both.
func headersForged(authResults, dkimSignature string) bool {
	if authResults == "" || dkimSignature == "" {
		return true
	}
	return strings.Contains(strings.ToLower(authResults), "fail")
}

// buildSummary renders the fixed-format line that downstream consumers hash
func buildSummary(r RuleScore, t TextScore, l SemanticScore) string {
	return fmt.Sprintf("关键词:%d URL:%d 附件:%d 文本困惑度:%s 突发度:%s LLM风格异常:%d 社工评分:%d 生成概率:%d",
		r.Keyword, r.URL, r.Attachment,
		formatRound2(t.PerplexityLike), formatRound2(t.Burstiness),
		l.StyleAnomaly, l.SocialEngineering, l.LLMGeneratedProbability)
}

// formatRound2 rounds to two decimals and prints the shortest form, always with a decimal point.
// Rounding is done on the exact binary value with ties to even, so 3.125 prints as 3.12.
func formatRound2(v float64) string {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatPercent(sim float64) string {
	return formatRound2(sim * 100)
}

func whoisField(intel *Intel, v string) string {
	if intel == nil || !intel.Whois.OK {
		return notAvailable
	}
	return orNA(v)
}

func sslField(intel *Intel, v string) string {
	if intel == nil || !intel.SSL.OK {
		return notAvailable
	}
	return orNA(v)
}

func orNA(v string) string {
	if v == "" {
		return notAvailable
	}
	return v
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
