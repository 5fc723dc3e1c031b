//go:build browser

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/trace"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/infra/tracer"
)

const (
	defaultBrowserTimeout = 30 * time.Second

	// maxPageChars caps the extracted text so one fetched page cannot blow
	// up a specialist's context window.
	maxPageChars = 20000
)

// RegisterBrowserTools adds the headless-browser fetch tool when the browser
// is enabled in configuration.
func RegisterBrowserTools(reg *Registry, cfg config.BrowserConfig, logger *slog.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	return reg.Register(NewFetchPageTool(cfg, logger))
}

// FetchPageTool renders a URL in a headless Chrome and returns its readable
// text. Each call launches a fresh browser so there is no session state to
// leak between specialists.
type FetchPageTool struct {
	timeout  time.Duration
	headless bool
	logger   *slog.Logger
}

func NewFetchPageTool(cfg config.BrowserConfig, logger *slog.Logger) *FetchPageTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	return &FetchPageTool{
		timeout:  timeout,
		headless: cfg.Headless,
		logger:   logger,
	}
}

func (t *FetchPageTool) Name() string { return "fetch_page" }

func (t *FetchPageTool) Description() string {
	return "Fetch a web page in a headless browser and return its title and readable text. Use for pages that require JavaScript rendering."
}

func (t *FetchPageTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {
					"type": "string",
					"description": "Absolute http(s) URL to fetch"
				}
			},
			"required": ["url"]
		}`),
	}
}

type fetchPageParams struct {
	URL string `json:"url"`
}

func (t *FetchPageTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fetch_page", t.logger, params,
		func(ctx context.Context, span trace.Span, p fetchPageParams) (any, error) {
			url := strings.TrimSpace(p.URL)
			if url == "" {
				return ErrResult("url is required")
			}
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return ErrResult("url must start with http:// or https://")
			}
			span.SetAttributes(tracer.StringAttr("page.url", url))

			title, text, err := t.fetch(ctx, url)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, err)
			}

			if len(text) > maxPageChars {
				text = text[:maxPageChars] + "\n[content truncated]"
			}
			return map[string]any{
				"url":   url,
				"title": title,
				"text":  text,
			}, nil
		})
}

func (t *FetchPageTool) fetch(ctx context.Context, url string) (title, text string, err error) {
	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	opts = append(opts,
		chromedp.Flag("headless", t.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, t.timeout)
	defer cancel()

	var bodyText string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Fall back to outer HTML when the body text came back empty
			// (some pages render everything into shadow DOM).
			if strings.TrimSpace(bodyText) != "" {
				return nil
			}
			root, derr := dom.GetDocument().Do(ctx)
			if derr != nil {
				return derr
			}
			html, derr := dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
			if derr != nil {
				return derr
			}
			bodyText = html
			return nil
		}),
	)
	if err != nil {
		return "", "", err
	}
	return title, strings.TrimSpace(bodyText), nil
}
