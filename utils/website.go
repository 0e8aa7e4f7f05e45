package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// WebsiteUnavailable marks a lead whose site could not be loaded.
	WebsiteUnavailable = "Could not load website."

	websiteTimeout    = 10 * time.Second
	snippetMaxChars   = 1500
	websiteUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxWebsiteBodyLen = 2 << 20
)

// SnippetUsable reports whether a snippet holds real site text.
func SnippetUsable(snippet string) bool {
	return snippet != "" && snippet != WebsiteUnavailable
}

// SnippetFetcher pulls visible text from a business website.
type SnippetFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// WebsiteFetcher reads a site's body text over plain HTTP.
type WebsiteFetcher struct {
	client *http.Client
}

func NewWebsiteFetcher() *WebsiteFetcher {
	return &WebsiteFetcher{client: &http.Client{Timeout: websiteTimeout}}
}

// Fetch returns the first snippetMaxChars characters of the page body text.
func (f *WebsiteFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", websiteUserAgent)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxWebsiteBodyLen))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return truncateRunes(text, snippetMaxChars), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
