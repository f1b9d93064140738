package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

// Publisher 实现了 port.Publisher 接口: 把生成的文档提交到仓库
// (例如 GitHub Pages 站点), 文件存在则更新, 内容相同则跳过
type Publisher struct {
	client     *github.Client
	target     config.Publish
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewPublisher 初始化 GitHub 客户端
// token: GitHub Personal Access Token, 写入仓库需要 contents 权限
func NewPublisher(token string, target config.Publish, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	var client *github.Client
	if token == "" {
		client = github.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	}

	if target.Branch == "" {
		target.Branch = "main"
	}
	return &Publisher{client: client, target: target, retryDelay: time.Second, logger: logger}
}

// Publish 依次提交 robots.txt, llm.txt, sitemap.xml
func (p *Publisher) Publish(ctx context.Context, docs *domain.DocumentSet) error {
	if p.target.Owner == "" || p.target.Repo == "" {
		return common.ValidationError("publish target needs owner and repo")
	}
	if docs == nil {
		return common.ValidationError("nothing to publish")
	}

	files := []struct {
		name    string
		content string
	}{
		{"robots.txt", docs.RobotsTxt},
		{"llm.txt", docs.LLMTxt},
		{"sitemap.xml", docs.SitemapXML},
	}
	for _, f := range files {
		if err := p.putFile(ctx, path.Join(p.target.Path, f.name), f.content); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) putFile(ctx context.Context, filePath, content string) error {
	sha, current, err := p.current(ctx, filePath)
	if err != nil {
		return common.WrapError(common.ErrCodeGitHubAPI, fmt.Sprintf("读取 %s 失败", filePath), err)
	}
	if sha != "" && current == content {
		p.logger.Info("document unchanged, skipping", "path", filePath)
		return nil
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Update " + path.Base(filePath)),
		Content: []byte(content),
		Branch:  github.String(p.target.Branch),
	}
	if sha != "" {
		opts.SHA = github.String(sha)
	}

	err = common.Do(ctx, func() error {
		var apiErr error
		if sha == "" {
			_, _, apiErr = p.client.Repositories.CreateFile(ctx, p.target.Owner, p.target.Repo, filePath, opts)
		} else {
			_, _, apiErr = p.client.Repositories.UpdateFile(ctx, p.target.Owner, p.target.Repo, filePath, opts)
		}
		return apiErr
	},
		common.WithMaxRetries(3),
		common.WithInitialDelay(p.retryDelay),
		common.WithRetryIf(retryable),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeGitHubAPI, fmt.Sprintf("提交 %s 失败", filePath), err)
	}

	p.logger.Info("document published",
		"repo", p.target.Owner+"/"+p.target.Repo, "branch", p.target.Branch, "path", filePath, "created", sha == "")
	return nil
}

// current 返回文件的 sha 和内容, 文件不存在时 sha 为空
func (p *Publisher) current(ctx context.Context, filePath string) (string, string, error) {
	file, _, _, err := p.client.Repositories.GetContents(ctx, p.target.Owner, p.target.Repo, filePath,
		&github.RepositoryContentGetOptions{Ref: p.target.Branch})
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	if file == nil {
		return "", "", fmt.Errorf("%s is a directory", filePath)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", "", err
	}
	return file.GetSHA(), content, nil
}

// retryable 只重试网络错误, 限流和 5xx
func retryable(err error) bool {
	var errResp *github.ErrorResponse
	if !errors.As(err, &errResp) || errResp.Response == nil {
		var rateErr *github.RateLimitError
		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
			return true
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	code := errResp.Response.StatusCode
	return code == http.StatusTooManyRequests || code >= 500
}
