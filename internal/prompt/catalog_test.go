package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sahay-go/internal/model"
)

func TestCatalogCoversAllDomainsAndLanguages(t *testing.T) {
	c := NewCatalog()

	for _, domain := range model.AllDomains {
		for _, lang := range append(c.Languages(), FallbackLanguage) {
			text := c.InstructionFor(domain, lang)
			assert.NotEmpty(t, text, "domain=%s lang=%s", domain, lang)
			assert.Contains(t, text, "Sahay")
		}
	}
}

func TestInstructionForAppendsLanguageConstraint(t *testing.T) {
	c := NewCatalog()

	assert.Contains(t, c.InstructionFor(model.DomainGeneral, "en"), "Respond only in English")
	assert.Contains(t, c.InstructionFor(model.DomainGeneral, "hi"), "Hindi")
	assert.Contains(t, c.InstructionFor(model.DomainGeneral, "ta"), "Tamil")
}

func TestInstructionForFallsBackToAuto(t *testing.T) {
	c := NewCatalog()

	// 不在目录里的语言标签回退到 auto 条目
	got := c.InstructionFor(model.DomainHealth, "bn")
	assert.Equal(t, c.InstructionFor(model.DomainHealth, FallbackLanguage), got)
	assert.Contains(t, got, "same language the user writes in")
}

func TestInstructionForUnknownDomainUsesGeneral(t *testing.T) {
	c := NewCatalog()

	got := c.InstructionFor(model.Domain("astrology"), "en")
	assert.Equal(t, c.InstructionFor(model.DomainGeneral, "en"), got)
}

func TestDomainSafetyGuidance(t *testing.T) {
	c := NewCatalog()

	health := c.InstructionFor(model.DomainHealth, "auto")
	assert.Contains(t, health, "112")
	assert.Contains(t, health, "not a doctor")

	legal := c.InstructionFor(model.DomainLegal, "auto")
	assert.Contains(t, legal, "1930")
	assert.Contains(t, legal, "15100")
}
