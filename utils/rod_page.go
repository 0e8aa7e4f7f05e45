package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser launches a fresh Chromium for every page so a crashed session
// never leaks into the next scrape.
type RodBrowser struct {
	headless bool
	bin      string
}

func NewRodBrowser(headless bool, bin string) *RodBrowser {
	return &RodBrowser{headless: headless, bin: strings.TrimSpace(bin)}
}

func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	l := launcher.New().Headless(b.headless)
	if b.bin != "" {
		l = l.Bin(b.bin)
	}
	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      websiteUserAgent,
		AcceptLanguage: "es-MX,es;q=0.9",
	}); err != nil {
		browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	return &RodPage{page: page, browser: browser, launcher: l}, nil
}

// RodPage implements Page on top of go-rod.
type RodPage struct {
	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (p *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitDOMStable(time.Second, 0.1)
}

func (p *RodPage) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, bool) {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, false
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return nil, false
	}
	return el, true
}

func (p *RodPage) Text(ctx context.Context, selector string, timeout time.Duration) (string, bool) {
	el, ok := p.element(ctx, selector, timeout)
	if !ok {
		return "", false
	}
	text, err := el.Text()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(text), true
}

func (p *RodPage) Attr(ctx context.Context, selector, attr string, timeout time.Duration) (string, bool) {
	el, ok := p.element(ctx, selector, timeout)
	if !ok {
		return "", false
	}
	value, err := el.Attribute(attr)
	if err != nil || value == nil {
		return "", false
	}
	return *value, true
}

func (p *RodPage) Visible(ctx context.Context, selector string, timeout time.Duration) bool {
	_, ok := p.element(ctx, selector, timeout)
	return ok
}

func (p *RodPage) Click(ctx context.Context, selector string, timeout time.Duration) bool {
	el, ok := p.element(ctx, selector, timeout)
	if !ok {
		return false
	}
	return el.Click(proto.InputMouseButtonLeft, 1) == nil
}

func (p *RodPage) Hrefs(ctx context.Context, selector string) []string {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil
	}
	hrefs := make([]string, 0, len(els))
	for _, el := range els {
		href, err := el.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		hrefs = append(hrefs, *href)
	}
	return hrefs
}

func (p *RodPage) ClickHref(ctx context.Context, selector, href string) bool {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return false
	}
	for _, el := range els {
		value, err := el.Attribute("href")
		if err != nil || value == nil || *value != href {
			continue
		}
		if err := el.ScrollIntoView(); err != nil {
			return false
		}
		return el.Click(proto.InputMouseButtonLeft, 1) == nil
	}
	return false
}

func (p *RodPage) HasText(ctx context.Context, selector, pattern string) bool {
	has, el, err := p.page.Context(ctx).HasR(selector, pattern)
	if err != nil || !has {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

func (p *RodPage) Scroll(ctx context.Context, dy float64) error {
	return p.page.Context(ctx).Mouse.Scroll(0, dy, 1)
}

// Close releases the page, the browser and the launched process.
func (p *RodPage) Close() error {
	err := p.browser.Close()
	p.launcher.Cleanup()
	return err
}
