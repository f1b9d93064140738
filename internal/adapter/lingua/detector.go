// Package lingua 识别回答的语言, 让提取器选用对应的情感词典
package lingua

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector 实现了 port.LanguageDetector 接口
type Detector struct {
	detector lingua.LanguageDetector
}

// New 创建只识别给定 ISO 639-1 语言的检测器, 通常是已配置词典的语言.
// 忽略未知代码, 至少需要两种已知语言.
func New(codes []string) (*Detector, error) {
	byCode := make(map[string]lingua.Language)
	for _, l := range lingua.AllLanguages() {
		byCode[strings.ToLower(l.IsoCode639_1().String())] = l
	}

	seen := make(map[lingua.Language]struct{})
	var languages []lingua.Language
	for _, c := range codes {
		l, ok := byCode[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		languages = append(languages, l)
	}
	if len(languages) < 2 {
		return nil, fmt.Errorf("language detection needs at least two known languages, got %v", codes)
	}

	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		WithMinimumRelativeDistance(0.1).
		Build()
	return &Detector{detector: d}, nil
}

// Detect 返回小写的 ISO 639-1 代码, 不确定时返回 ""
func (d *Detector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	l, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(l.IsoCode639_1().String())
}

// LexiconLanguages 返回词典map排序后的key
func LexiconLanguages[V any](lexicons map[string]V) []string {
	codes := make([]string, 0, len(lexicons))
	for c := range lexicons {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
