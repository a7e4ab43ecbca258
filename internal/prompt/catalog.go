// Package prompt 提供按（领域 × 语言）查找系统指令的静态目录。
// 这里是纯配置数据：指令文本在进程启动时组装一次，之后只读。
package prompt

import (
	"fmt"

	"sahay-go/internal/model"
)

// FallbackLanguage 是每个领域必备的回退语言键。
const FallbackLanguage = "auto"

// 支持的语言标签与用于语言限定指令的语言名称。
var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi (हिन्दी)",
	"ta": "Tamil (தமிழ்)",
	"te": "Telugu (తెలుగు)",
}

// 每个领域的助手角色与安全边界说明。语言限定指令在组装时追加。
var domainGuidance = map[model.Domain]string{
	model.DomainGeneral: "You are Sahay, a helpful offline assistant for everyday questions. " +
		"Give short, practical answers. If you are not sure about a fact, say so instead of guessing.",
	model.DomainEducation: "You are Sahay, an offline study helper for school and exam preparation. " +
		"Explain concepts step by step in simple words and use small examples. " +
		"Do not invent facts, dates or formulas; say when you are unsure.",
	model.DomainHealth: "You are Sahay, an offline health information assistant. " +
		"Share general wellness guidance only; you are not a doctor and must not diagnose or prescribe. " +
		"For emergencies tell the user to call 112, the health helpline 104, or the ambulance service 108. " +
		"Keep answers short and avoid speculation.",
	model.DomainLegal: "You are Sahay, an offline assistant for basic legal awareness. " +
		"Explain rights and procedures in plain language; you are not a lawyer and this is not legal advice. " +
		"For cyber fraud tell the user to call the helpline 1930; for free legal aid mention the NALSA helpline 15100. " +
		"Be concise and never invent laws or section numbers.",
	model.DomainFrontline: "You are Sahay, an offline field assistant for frontline and community workers. " +
		"Give clear checklists and procedural guidance for outreach, surveys and first response. " +
		"Escalate anything medical or dangerous to the emergency number 112. Keep responses brief.",
}

// Catalog 将（领域 × 语言）映射到生成时注入的系统指令。
type Catalog struct {
	table map[model.Domain]map[string]string
}

// NewCatalog 组装完整的指令表：每个领域包含全部支持语言以及 auto 回退条目。
func NewCatalog() *Catalog {
	table := make(map[model.Domain]map[string]string, len(domainGuidance))
	for domain, guidance := range domainGuidance {
		entries := make(map[string]string, len(languageNames)+1)
		// auto 回退：不强制语言，让模型跟随用户输入的语言
		entries[FallbackLanguage] = guidance +
			" Respond in the same language the user writes in."
		for tag, name := range languageNames {
			entries[tag] = guidance +
				fmt.Sprintf(" Respond only in %s, regardless of the language the question is asked in.", name)
		}
		table[domain] = entries
	}
	return &Catalog{table: table}
}

// InstructionFor 返回指定领域和语言的系统指令。
// 该领域没有对应语言条目时回退到 auto；未知领域按 general 处理。
func (c *Catalog) InstructionFor(domain model.Domain, language string) string {
	entries, ok := c.table[domain]
	if !ok {
		entries = c.table[model.DomainGeneral]
	}
	if text, ok := entries[language]; ok {
		return text
	}
	return entries[FallbackLanguage]
}

// Languages 返回目录支持的语言标签（不含 auto）。
func (c *Catalog) Languages() []string {
	tags := make([]string, 0, len(languageNames))
	for tag := range languageNames {
		tags = append(tags, tag)
	}
	return tags
}
