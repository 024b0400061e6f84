// Package fetch provides the builtin web_fetch tool: it retrieves a URL and
// returns the response as text, markdown, raw HTML or parsed JSON.
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/danyelangel/automata/internal/logger"
	"github.com/danyelangel/automata/internal/tools"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 1 << 20 // 1 MiB
	userAgent       = "automata/1.0"
)

// Config holds fetch tool limits.
type Config struct {
	TimeoutSeconds  int
	MaxResponseSize int64
}

// Tool implements the web_fetch tool.
type Tool struct {
	cfg    Config
	logger *logger.Logger
}

// New creates the fetch tool.
func New(cfg Config, log *logger.Logger) *Tool {
	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = defaultMaxBytes
	}
	return &Tool{cfg: cfg, logger: log}
}

type fetchArgs struct {
	URL             string            `json:"url"`
	Format          string            `json:"format"`
	Headers         map[string]string `json:"headers"`
	Method          string            `json:"method"`
	Body            string            `json:"body"`
	BasicAuth       *basicAuth        `json:"basicAuth"`
	FollowRedirects *bool             `json:"followRedirects"`
	Timeout         *int              `json:"timeout"`
}

type basicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (t *Tool) Name() string {
	return "web_fetch"
}

func (t *Tool) Description() string {
	return "Fetch content from a URL. Returns formatted text with metadata."
}

func (t *Tool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to fetch. Must start with http:// or https://",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"text", "html", "markdown", "json"},
				"default":     "text",
				"description": "Output format: 'text' (strips HTML tags), 'html' (raw HTML), 'markdown' (converts HTML to Markdown), or 'json' (parse JSON response)",
			},
			"headers": map[string]interface{}{
				"type":        "object",
				"description": "Optional HTTP headers",
				"additionalProperties": map[string]interface{}{
					"type": "string",
				},
			},
			"method": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default":     "GET",
				"description": "HTTP method to use",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Request body (for POST, PUT, PATCH methods)",
			},
			"basicAuth": map[string]interface{}{
				"type":        "object",
				"description": "Optional Basic Authentication",
				"properties": map[string]interface{}{
					"username": map[string]interface{}{"type": "string"},
					"password": map[string]interface{}{"type": "string"},
				},
			},
			"followRedirects": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Follow HTTP redirects. Set to false to stop at the first redirect",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (1-120). Omit to use the default",
				"minimum":     1,
				"maximum":     120,
			},
		},
		"required": []interface{}{"url"},
	}
}

func (t *Tool) Execute(ctx context.Context, args string, _ tools.Env) (string, error) {
	var fa fetchArgs
	if err := json.Unmarshal([]byte(args), &fa); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %w", err)
	}

	if fa.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(fa.URL, "http://") && !strings.HasPrefix(fa.URL, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}
	if fa.Format == "" {
		fa.Format = "text"
	}
	if fa.Method == "" {
		fa.Method = "GET"
	}
	if fa.Body != "" && (fa.Method == "GET" || fa.Method == "HEAD" || fa.Method == "DELETE") {
		fa.Body = ""
	}

	timeout := time.Duration(t.cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if fa.Timeout != nil {
		if *fa.Timeout < 1 || *fa.Timeout > 120 {
			return "", fmt.Errorf("timeout must be between 1 and 120 seconds")
		}
		timeout = time.Duration(*fa.Timeout) * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if fa.FollowRedirects != nil && !*fa.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var bodyReader io.Reader
	if fa.Body != "" {
		bodyReader = strings.NewReader(fa.Body)
	}

	req, err := http.NewRequestWithContext(ctx, fa.Method, fa.URL, bodyReader)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	if fa.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range fa.Headers {
		req.Header.Set(name, value)
	}
	if fa.BasicAuth != nil && fa.BasicAuth.Username != "" {
		auth := fa.BasicAuth.Username + ":" + fa.BasicAuth.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > t.cfg.MaxResponseSize {
		return "", fmt.Errorf("response too large: %d bytes exceeds %d bytes limit",
			resp.ContentLength, t.cfg.MaxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) >= t.cfg.MaxResponseSize {
		return "", fmt.Errorf("response truncated: exceeds %d bytes limit", t.cfg.MaxResponseSize)
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)

	if strings.Contains(contentType, "text/html") {
		switch fa.Format {
		case "text":
			content = t.stripHTML(content)
		case "markdown":
			content = t.htmlToMarkdown(content)
		}
	}

	result := map[string]interface{}{
		"url":         fa.URL,
		"status":      resp.StatusCode,
		"statusText":  resp.Status,
		"contentType": contentType,
		"length":      len(content),
		"content":     content,
	}

	if fa.Format == "json" {
		var jsonData interface{}
		if err := json.Unmarshal(body, &jsonData); err != nil {
			return "", fmt.Errorf("failed to parse JSON response: %w", err)
		}
		result["json"] = jsonData
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(resultJSON), nil
}

// stripHTML extracts readable text from an HTML document.
func (t *Tool) stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, nav, footer, aside").Remove()
	text := doc.Text()

	reSpace := regexp.MustCompile(`\s+`)
	return strings.TrimSpace(reSpace.ReplaceAllString(text, " "))
}

// htmlToMarkdown converts an HTML document to markdown, dropping chrome
// elements.
func (t *Tool) htmlToMarkdown(html string) string {
	opts := &md.Options{
		HeadingStyle:    "atx",
		CodeBlockStyle:  "fenced",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	}

	converter := md.NewConverter("", true, opts)
	converter.Keep("a", "img")

	empty := ""
	converter.AddRules(md.Rule{
		Filter: []string{"nav", "footer", "aside", "script", "style"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			return &empty
		},
	})

	markdown, err := converter.ConvertString(html)
	if err != nil {
		t.logger.Error("Failed to convert HTML to Markdown", err)
		return ""
	}

	reCleanNewlines := regexp.MustCompile(`\n{3,}`)
	markdown = reCleanNewlines.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}
