package semantic

// SystemPrompt instructs the model to answer with the five-field JSON object
const SystemPrompt = `你是安全检测助手。对给定邮件正文进行钓鱼风险分析，输出 JSON：
{
  "semantic_consistency": 0-100,
  "style_anomaly": 0-100,
  "social_engineering": 0-100,
  "llm_generated_probability": 0-100,
  "evidence": "关键依据简述"
}。仅返回 JSON，不要解释。`
