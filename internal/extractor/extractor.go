// Package extractor 在AI回答中查找品牌: 排第几, 评价倾向, 原文片段
package extractor

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/port"
)

// Options 分段和情感打分的配置
type Options struct {
	Mode                 string
	Window               int
	ListItemsAreEntities bool
	MaxSnippet           int
	DefaultLanguage      string
	Lexicons             map[string]config.Lexicon
}

// OptionsFromConfig 从配置中取出提取器相关的设置
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:                 cfg.Segmentation.Mode,
		Window:               cfg.Segmentation.Window,
		ListItemsAreEntities: cfg.Segmentation.ListItemsAreEntities,
		MaxSnippet:           cfg.Segmentation.MaxSnippet,
		DefaultLanguage:      cfg.DefaultLanguage,
		Lexicons:             cfg.Lexicons,
	}
}

// Extraction 一条回答针对一个品牌的提取结果. 未提及时 Position 为 nil
type Extraction struct {
	Position    *int
	Sentiment   domain.Sentiment
	Snippet     string
	Occurrences int
	Language    string
}

type lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
	// 多词条目按短语匹配
	positivePhrases []string
	negativePhrases []string
}

// Extractor 创建后不可变, 可并发使用
type Extractor struct {
	opts     Options
	lexicons map[string]*lexicon
	detector port.LanguageDetector
}

// New 创建提取器. detector 可以为 nil, 此时总是使用默认语言的词典
func New(opts Options, detector port.LanguageDetector) *Extractor {
	if opts.Mode == "" {
		opts.Mode = config.SegmentSentence
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if opts.Lexicons == nil {
		opts.Lexicons = config.DefaultLexicons()
	}

	lexicons := make(map[string]*lexicon, len(opts.Lexicons))
	for lang, lx := range opts.Lexicons {
		lexicons[strings.ToLower(lang)] = compileLexicon(lx)
	}

	return &Extractor{opts: opts, lexicons: lexicons, detector: detector}
}

func compileLexicon(lx config.Lexicon) *lexicon {
	out := &lexicon{
		positive: map[string]struct{}{},
		negative: map[string]struct{}{},
	}
	add := func(words []string, set map[string]struct{}, phrases *[]string) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			switch {
			case w == "":
			case strings.ContainsFunc(w, unicode.IsSpace):
				*phrases = append(*phrases, strings.Join(strings.Fields(w), " "))
			default:
				set[w] = struct{}{}
			}
		}
	}
	add(lx.Positive, out.positive, &out.positivePhrases)
	add(lx.Negative, out.negative, &out.negativePhrases)
	return out
}

// Extract 在 text 中查找品牌或其别名
func (e *Extractor) Extract(text, brand string, aliases []string) Extraction {
	return e.ExtractWithEntities(text, brand, aliases, nil)
}

// ExtractWithEntities 同 Extract, 另外传入其他实体名(通常是竞品).
// 提到它们的片段即使不是列表项也参与排名.
func (e *Extractor) ExtractWithEntities(text, brand string, aliases, others []string) Extraction {
	lang := e.language(text)
	result := Extraction{Sentiment: domain.SentimentNeutral, Language: lang}

	names := normalizeNames(append([]string{brand}, aliases...))
	if len(names) == 0 {
		return result
	}
	otherNames := normalizeNames(others)

	segs := segment(text, e.opts.Mode)
	first := -1
	rank := 0
	for i, seg := range segs {
		hit := mentionsAny(seg.lower, names)
		entity := hit ||
			(seg.listItem && e.opts.ListItemsAreEntities) ||
			mentionsAny(seg.lower, otherNames)
		if entity {
			rank++
		}
		if !hit {
			continue
		}
		result.Occurrences += countMentions(seg.lower, names)
		if first < 0 {
			first = i
			pos := rank
			result.Position = &pos
		}
	}

	if first < 0 {
		return result
	}

	result.Snippet = truncate(segs[first].text, e.opts.MaxSnippet)
	result.Sentiment = e.score(segs, first, lang)
	return result
}

func (e *Extractor) language(text string) string {
	if e.detector != nil {
		if lang := strings.ToLower(e.detector.Detect(text)); lang != "" {
			if _, ok := e.lexicons[lang]; ok {
				return lang
			}
		}
	}
	return e.opts.DefaultLanguage
}

// score 对 center 前后窗口内的片段做情感判断
func (e *Extractor) score(segs []seg, center int, lang string) domain.Sentiment {
	lx, ok := e.lexicons[lang]
	if !ok {
		return domain.SentimentNeutral
	}

	lo := max(center-e.opts.Window, 0)
	hi := min(center+e.opts.Window, len(segs)-1)

	balance := 0
	for i := lo; i <= hi; i++ {
		lower := segs[i].lower
		for _, tok := range tokenize(lower) {
			if _, ok := lx.positive[tok]; ok {
				balance++
			}
			if _, ok := lx.negative[tok]; ok {
				balance--
			}
		}
		for _, p := range lx.positivePhrases {
			balance += countMatches(lower, p)
		}
		for _, p := range lx.negativePhrases {
			balance -= countMatches(lower, p)
		}
	}

	switch {
	case balance > 0:
		return domain.SentimentPositive
	case balance < 0:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

type seg struct {
	text     string
	lower    string
	listItem bool
}

var (
	listMarker    = regexp.MustCompile(`^(?:\d{1,3}[.)]|[-*+•])\s+`)
	headingMarker = regexp.MustCompile(`^#{1,6}\s+`)
	emphasis      = strings.NewReplacer("**", "", "__", "", "`", "")
)

// segment 把文本切成参与排名的片段. 每个列表项单独成段;
// 其他行按空行分成段落, 句子模式下再拆成句子.
func segment(text, mode string) []seg {
	var out []seg
	var para []string

	push := func(s string, listItem bool) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			return
		}
		out = append(out, seg{text: s, lower: strings.ToLower(s), listItem: listItem})
	}
	flush := func() {
		if len(para) == 0 {
			return
		}
		block := strings.Join(para, " ")
		para = nil
		if mode == config.SegmentParagraph {
			push(block, false)
			return
		}
		for _, sentence := range splitSentences(block) {
			push(sentence, false)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = emphasis.Replace(strings.TrimSpace(line))
		if line == "" {
			flush()
			continue
		}
		if loc := listMarker.FindStringIndex(line); loc != nil {
			flush()
			push(line[loc[1]:], true)
			continue
		}
		if loc := headingMarker.FindStringIndex(line); loc != nil {
			flush()
			para = append(para, line[loc[1]:])
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return out
}

// splitSentences 在后面跟空白的 '.' '!' '?' 处断句
func splitSentences(block string) []string {
	var out []string
	start := 0
	for i, r := range block {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next < len(block) {
			nr, _ := utf8.DecodeRuneInString(block[next:])
			if !unicode.IsSpace(nr) {
				continue
			}
		}
		out = append(out, block[start:next])
		start = next
	}
	if start < len(block) {
		out = append(out, block[start:])
	}
	return out
}

func normalizeNames(names []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range names {
		n = strings.ToLower(strings.Join(strings.Fields(n), " "))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func mentionsAny(lower string, names []string) bool {
	for _, n := range names {
		if countMatches(lower, n) > 0 {
			return true
		}
	}
	return false
}

// countMentions 统计 names 在 text 中出现的总次数. 重叠的匹配只算一次,
// 例如别名 "tesla motors" 不会再让 "tesla" 多算一次.
func countMentions(text string, names []string) int {
	byLen := append([]string(nil), names...)
	sort.SliceStable(byLen, func(i, j int) bool { return len(byLen[i]) > len(byLen[j]) })

	covered := make([]bool, len(text))
	n := 0
	for _, name := range byLen {
		for _, i := range matchIndexes(text, name) {
			end := i + len(name)
			if slices.Contains(covered[i:end], true) {
				continue
			}
			for k := i; k < end; k++ {
				covered[k] = true
			}
			n++
		}
	}
	return n
}

// countMatches 统计 name 在 text 中前后不紧挨字母或数字的出现次数. 两个参数都必须是小写.
func countMatches(text, name string) int {
	return len(matchIndexes(text, name))
}

func matchIndexes(text, name string) []int {
	if name == "" {
		return nil
	}
	var out []int
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], name)
		if i < 0 {
			break
		}
		i += start
		if boundaryBefore(text, i) && boundaryAfter(text, i+len(name)) {
			out = append(out, i)
		}
		start = i + 1
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !isWordRune(r)
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool { return !isWordRune(r) })
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}
