// Package trends supplies the market-trend paragraph the planner feeds into
// its creation call.
package trends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// DefaultContext is used when no source is configured or a source fails.
const DefaultContext = `On February 14, 2025, Valentine's Day celebrations showcased evolving trends. Notably, consumers shifted from traditional gifts toward experiential presents, with interest in massages, event tickets, and travel surging by 104%, 238%, and 59% respectively, while candy and cookie interest declined by 13%.
Social media platforms, especially TikTok, influenced gift choices and planning, with users seeking unique and personalized experiences.
Additionally, sales of tinned fish, such as anchovies and sardines, increased by over 30% at Selfridges, driven by social media influencers and celebrity chefs.
These trends reflect a broader move toward meaningful, diverse, and unconventional expressions of affection.`

const (
	maxContextRunes = 4000
	minContextRunes = 80
	maxBodySize     = 5 << 20
)

// Source yields trend context text.
type Source interface {
	Context(ctx context.Context) (string, error)
}

// Static returns a fixed paragraph. An empty text yields DefaultContext.
type Static string

// Context implements Source.
func (s Static) Context(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return DefaultContext, nil
	}
	return string(s), nil
}

// File reads the paragraph from disk on every call so operators can refresh
// it without a restart. Long files keep their tail, where Analyzer.AppendDaily
// puts the newest notes.
type File string

// Context implements Source.
func (f File) Context(context.Context) (string, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("trends: read %s: %w", string(f), err)
	}
	text := normalizeText(string(raw))
	if text == "" {
		return "", fmt.Errorf("trends: %s is empty", string(f))
	}
	return clipTail(text), nil
}

// URL fetches a trend report page and extracts its readable text.
type URL struct {
	url    *nurl.URL
	client *http.Client
}

// NewURL validates rawURL and builds a page source.
func NewURL(rawURL string, client *http.Client) (*URL, error) {
	u, err := nurl.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("trends: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("trends: unsupported url scheme %q", u.Scheme)
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &URL{url: u, client: client}, nil
}

// Context implements Source.
func (s *URL) Context(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return "", fmt.Errorf("trends: create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("trends: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("trends: HTTP %d for %s", resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("trends: read body: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), s.url)
	if err != nil {
		return "", fmt.Errorf("trends: readability: %w", err)
	}
	text := normalizeText(article.TextContent)
	if utf8.RuneCountInString(text) < minContextRunes {
		return "", errors.New("trends: extracted page text too short")
	}
	return clip(text), nil
}

// FromSetting picks a source from a TREND_SOURCE value: empty for the
// default paragraph, an http(s) URL for a page, anything else a file path.
func FromSetting(setting string, client *http.Client) (Source, error) {
	setting = strings.TrimSpace(setting)
	switch {
	case setting == "":
		return Static(""), nil
	case strings.HasPrefix(setting, "http://"), strings.HasPrefix(setting, "https://"):
		return NewURL(setting, client)
	default:
		return File(strings.TrimPrefix(setting, "file://")), nil
	}
}

var multiSpace = regexp.MustCompile(`[ \t]+`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return s
}

func clip(text string) string {
	if utf8.RuneCountInString(text) <= maxContextRunes {
		return text
	}
	return string([]rune(text)[:maxContextRunes])
}

func clipTail(text string) string {
	runes := []rune(text)
	if len(runes) <= maxContextRunes {
		return text
	}
	return strings.TrimSpace(string(runes[len(runes)-maxContextRunes:]))
}
