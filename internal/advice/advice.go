// Package advice maps threat names to remediation guidance.
package advice

// Fallback is returned for threat names without dedicated guidance
const Fallback = "请进行来源核验与最小权限加固，并审计相关活动。"

// Entry is one threat name with its recommendation
type Entry struct {
	Name           string `json:"name"`
	Recommendation string `json:"recommendation"`
}

var entries = []Entry{
	{"社会工程诱导", "加强安全意识培训与二次验证；收敛敏感信息传递渠道；为账户强制开启 MFA；在流程中加入来源核验与审批环节。"},
	{"恶意链接", "禁用邮件内直达链接；启用域名信誉校验与阻断；使用隔离浏览器或安全沙箱；核验发件域 SPF/DKIM/DMARC 并限制可疑 TLD。"},
	{"危险附件", "阻断可执行与启用宏的文档类型；启用沙箱扫描与内容解码；默认禁用宏；限制来自外部来源的附件执行权限。"},
	{"生成文本伪装", "建立内容审批与异常风格审计；对模板化表述进行规则校验；结合来源可信度与上下文一致性进行复核。"},
	{"品牌冒充", "核验品牌官方域与签名，阻断仿冒内容。"},
	{"域名同形异义", "启用同形域名检测与阻断策略。"},
	{"邮件头伪造", "强制 SPF/DKIM/DMARC 校验与拒收策略。"},
}

var byName = func() map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Recommendation
	}
	return m
}()

// Recommendation returns the guidance for a threat name, or Fallback
func Recommendation(name string) string {
	if r, ok := byName[name]; ok {
		return r
	}
	return Fallback
}

// List returns every known entry in threat order
func List() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
