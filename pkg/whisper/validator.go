package whisper

import (
	"regexp"
	"strings"
)

// 大小门禁的默认边界：低于 ~5KB 的文件短到装不下语音，
// 高于 ~50MB 的文件对录音界面的预期时长来说不合理。
const (
	DefaultMinAudioBytes int64 = 5000
	DefaultMaxAudioBytes int64 = 50 * 1024 * 1024
)

// 空白或噪声音频上模型常见的幻觉产物：括号类非语音标记和固定口头禅。
var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[\s*(blank[_ ]?audio|music|applause|noise|silence|inaudible|laughter)\s*\]`),
	regexp.MustCompile(`(?i)\(\s*(music|applause|noise|silence|laughter)\s*\)`),
	regexp.MustCompile(`♪+`),
	regexp.MustCompile(`(?i)thanks? (you )?for watching[.!]?`),
	regexp.MustCompile(`(?i)please (like and )?subscribe[.!]?`),
	regexp.MustCompile(`(?i)subtitles? (made )?by [^.\n]*[.]?`),
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)

// 连续重复 4 次及以上才折叠：3 次重复还可能是正常的口语表达。
const repeatCollapseThreshold = 4

// Validator 校验并清理语音识别的原始输出。
type Validator struct {
	minBytes int64
	maxBytes int64
}

// NewValidator 创建一个转写校验器，非正数边界取默认值。
func NewValidator(minBytes, maxBytes int64) *Validator {
	if minBytes <= 0 {
		minBytes = DefaultMinAudioBytes
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	return &Validator{minBytes: minBytes, maxBytes: maxBytes}
}

// IsAcceptable 在调用引擎之前对音频文件大小做快速门禁。
func (v *Validator) IsAcceptable(sizeBytes int64) bool {
	return sizeBytes >= v.minBytes && sizeBytes <= v.maxBytes
}

// MinBytes 返回门禁下界。
func (v *Validator) MinBytes() int64 { return v.minBytes }

// MaxBytes 返回门禁上界。
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Clean 清理原始转写文本：去除幻觉产物、折叠退化的重复词、
// 去掉泄漏进输出的语言提示文本、折叠空白。
// 清理把整句清空时回退到原始文本——宁可展示不完美的转写，也不静默丢弃用户输入；
// 只有原始文本去掉空白后也为空时才返回 ErrNoSpeechDetected。
func (v *Validator) Clean(rawText, languageHint string) (string, error) {
	raw := strings.TrimSpace(rawText)
	if raw == "" {
		return "", ErrNoSpeechDetected
	}

	text := rawText
	for _, re := range artifactPatterns {
		text = re.ReplaceAllString(text, " ")
	}
	if languageHint != "" {
		if re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(languageHint)); err == nil {
			text = re.ReplaceAllString(text, " ")
		}
	}
	text = collapseRepeats(text, repeatCollapseThreshold)
	text = strings.TrimSpace(whitespaceRegexp.ReplaceAllString(text, " "))

	if text == "" {
		return raw, nil
	}
	return text, nil
}

// collapseRepeats 把同一个词连续出现 threshold 次及以上的游程折叠为单次出现，
// 防御噪声输入上语音识别的退化循环。
func collapseRepeats(text string, threshold int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		j := i + 1
		for j < len(words) && strings.EqualFold(words[j], words[i]) {
			j++
		}
		if j-i >= threshold {
			out = append(out, words[i])
		} else {
			out = append(out, words[i:j]...)
		}
		i = j
	}
	return strings.Join(out, " ")
}
