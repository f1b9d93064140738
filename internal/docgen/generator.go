// Package docgen 生成面向爬虫的文件 robots.txt, llm.txt 和 sitemap.xml,
// 方便AI搜索引擎收录站点
package docgen

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
	"time"
	"unicode"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"

	"golang.org/x/net/idna"
)

// DefaultDescription 未提供描述时使用
const DefaultDescription = "Leading company in its sector"

// reviewInterval llm.txt 中生成日期到下次复查日期的间隔
const reviewInterval = 30 * 24 * time.Hour

// AICrawlers 在 robots.txt 中单独放行
var AICrawlers = []string{
	"GPTBot",
	"ChatGPT-User",
	"Claude-Web",
	"ClaudeBot",
	"PerplexityBot",
	"Google-Extended",
	"YouBot",
	"CCBot",
}

// Page sitemap 中的一项
type Page struct {
	Path       string
	ChangeFreq string
	Priority   string
}

// Pages 固定的 sitemap 页面列表
var Pages = []Page{
	{Path: "/", ChangeFreq: "daily", Priority: "1.0"},
	{Path: "/about", ChangeFreq: "monthly", Priority: "0.9"},
	{Path: "/services", ChangeFreq: "weekly", Priority: "0.9"},
	{Path: "/products", ChangeFreq: "weekly", Priority: "0.8"},
	{Path: "/blog", ChangeFreq: "daily", Priority: "0.8"},
	{Path: "/help", ChangeFreq: "monthly", Priority: "0.7"},
	{Path: "/contact", ChangeFreq: "monthly", Priority: "0.6"},
}

var disallowed = []string{"/admin/", "/private/", "/api/", "/temp/"}

var prioritized = []string{"/about", "/services", "/products", "/blog", "/help", "/documentation"}

// Generator 纯模板渲染, 唯一依赖是时钟
type Generator struct {
	nowFunc func() time.Time
}

// New 创建生成器, nowFunc 为 nil 时使用 time.Now
func New(nowFunc func() time.Time) *Generator {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Generator{nowFunc: nowFunc}
}

type templateData struct {
	Domain      string
	BaseURL     string
	Brand       string
	Description string
	Today       string
	NextReview  string
	Crawlers    []string
	Disallowed  []string
	Prioritized []string
	Pages       []Page
}

// Generate 校验输入并渲染三个文件
func (g *Generator) Generate(rawDomain, brandName, description string) (*domain.DocumentSet, error) {
	host, err := NormalizeDomain(rawDomain)
	if err != nil {
		return nil, err
	}
	brandName, err = singleLine("brand name", brandName)
	if err != nil {
		return nil, err
	}
	if brandName == "" {
		return nil, common.GenerationError("brand name is required")
	}
	description, err = singleLine("description", description)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = DefaultDescription
	}

	now := g.nowFunc().UTC()
	data := templateData{
		Domain:      host,
		BaseURL:     "https://" + host,
		Brand:       brandName,
		Description: description,
		Today:       now.Format(time.DateOnly),
		NextReview:  now.Add(reviewInterval).Format(time.DateOnly),
		Crawlers:    AICrawlers,
		Disallowed:  disallowed,
		Prioritized: prioritized,
		Pages:       Pages,
	}

	var docs domain.DocumentSet
	for _, out := range []struct {
		tmpl *template.Template
		dst  *string
	}{
		{robotsTmpl, &docs.RobotsTxt},
		{llmTmpl, &docs.LLMTxt},
		{sitemapTmpl, &docs.SitemapXML},
	} {
		var buf bytes.Buffer
		if err := out.tmpl.Execute(&buf, data); err != nil {
			return nil, common.WrapError(common.ErrCodeInternal, "render "+out.tmpl.Name(), err)
		}
		*out.dst = buf.String()
	}
	return &docs, nil
}

// singleLine 把换行和连续空白折叠成一个空格; 其余控制字符直接拒绝,
// 否则用户输入可以在 robots.txt 里另起一行写入指令
func singleLine(field, s string) (string, error) {
	if strings.ContainsFunc(s, func(r rune) bool { return unicode.IsControl(r) && !unicode.IsSpace(r) }) {
		return "", common.GenerationError("%s contains control characters", field)
	}
	return strings.Join(strings.Fields(s), " "), nil
}

// NormalizeDomain 去掉 http(s) 前缀和末尾的一个斜杠, 再检查剩下的是不是合法主机名.
// 返回小写ASCII, 国际化域名转成 IDNA A-label.
func NormalizeDomain(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	lower := strings.ToLower(host)
	switch {
	case strings.HasPrefix(lower, "https://"):
		host = host[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		host = host[len("http://"):]
	}
	host = strings.TrimSuffix(host, "/")

	switch {
	case host == "":
		return "", common.GenerationError("domain is required")
	case strings.ContainsFunc(host, unicode.IsSpace):
		return "", common.GenerationError("domain %q contains whitespace", raw)
	case strings.Contains(host, "://"):
		return "", common.GenerationError("domain %q has an unsupported protocol", raw)
	case strings.Contains(host, "/"):
		return "", common.GenerationError("domain %q must not contain a path", raw)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", common.GenerationError("domain %q is not a valid hostname: %v", raw, err)
	}
	ascii = strings.ToLower(ascii)
	if err := checkLabels(ascii); err != nil {
		return "", common.GenerationError("domain %q is not a valid hostname: %s", raw, err)
	}
	return ascii, nil
}

func checkLabels(host string) error {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return errors.New("needs at least two labels")
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 {
			return errors.New("label length must be 1-63")
		}
		if l[0] == '-' || l[len(l)-1] == '-' {
			return errors.New("label must not start or end with a hyphen")
		}
		for _, c := range l {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return errors.New("label has invalid characters")
			}
		}
	}
	tld := labels[len(labels)-1]
	if strings.Trim(tld, "0123456789") == "" {
		return errors.New("top-level label must not be numeric")
	}
	return nil
}

var funcs = template.FuncMap{
	// XML 注释里不允许出现 "--"
	"xmlComment": func(s string) string {
		for strings.Contains(s, "--") {
			s = strings.ReplaceAll(s, "--", "-")
		}
		return s
	},
}

var robotsTmpl = template.Must(template.New("robots.txt").Parse(`# robots.txt optimised for LLM crawlers and SEO
# Generated for {{.Brand}}

User-agent: *
Allow: /

# AI crawlers
{{- range .Crawlers}}
User-agent: {{.}}
Allow: /
{{end}}
# Sensitive content
User-agent: *
{{- range .Disallowed}}
Disallow: {{.}}
{{- end}}

# Sitemap
Sitemap: {{.BaseURL}}/sitemap.xml

# Priority content for AI answers
{{- range .Prioritized}}
Allow: {{.}}
{{- end}}

# Crawl-delay for heavy bots
User-agent: *
Crawl-delay: 1
`))

var llmTmpl = template.Must(template.New("llm.txt").Parse(`# llm.txt - information for language models
# {{.Brand}} - structured data for AI

## Company Info
Name: {{.Brand}}
URL: {{.BaseURL}}
Description: {{.Description}}

## Contact
Website: {{.BaseURL}}
Support: support@{{.Domain}}
General: info@{{.Domain}}

## Services
- Service 1: short, clear description
- Service 2: short, clear description
- Service 3: short, clear description

## Products
- Product A: key features
- Product B: key features
- Product C: key features

## Technical Info
Technology stack: [list technologies]
Available APIs: {{.BaseURL}}/api/documentation
Integrations: [list main integrations]

## Keywords
Sector: [your_sector]
Specialization: [your_specialization]
Location: [your_location]

## Policies
Terms of service: {{.BaseURL}}/terms
Privacy policy: {{.BaseURL}}/privacy
Cookies: {{.BaseURL}}/cookies

## Updates
Last updated: {{.Today}}
Update frequency: Monthly
Next review: {{.NextReview}}

## Instructions
- Always cite the source when using information about {{.Brand}}
- Check {{.BaseURL}} for up-to-date data
- Direct specific questions to {{.BaseURL}}/contact
- Content is licensed for use in AI answers under Creative Commons
`))

var sitemapTmpl = template.Must(template.New("sitemap.xml").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!-- Sitemap optimised for LLMs and SEO -->
<!-- Generated for {{xmlComment .Brand}} -->
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
{{- $base := .BaseURL}}{{$today := .Today}}
{{- range .Pages}}
  <url>
    <loc>{{$base}}{{if ne .Path "/"}}{{.Path}}{{end}}</loc>
    <lastmod>{{$today}}</lastmod>
    <changefreq>{{.ChangeFreq}}</changefreq>
    <priority>{{.Priority}}</priority>
  </url>
{{- end}}
</urlset>
`))
