package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"leadpilot/models"
)

// Maps selectors. The results UI is third-party and changes without notice.
const (
	resultLinkSelector = `a[href*="/maps/place/"]`
	consentSelector    = `button[aria-label*="Accept"], button[aria-label*="Aceptar"]`
	endOfListSelector  = "span, p, div.m6QErb"
	endOfListPattern   = `reached the end of the list|llegaste al final de la lista`

	pageLoadTimeout  = 60 * time.Second
	settleDelay      = 5 * time.Second
	consentTimeout   = 5 * time.Second
	fieldTimeout     = 2 * time.Second
	panelTimeout     = 10 * time.Second
	scrollPause      = 2 * time.Second
	emptyScrollDelta = 5000
	pageScrollDelta  = 3000
	maxIdleScrolls   = 3
)

// ErrDetailNotLoaded is returned when a result's detail panel never showed.
var ErrDetailNotLoaded = errors.New("detail panel did not load")

// Page is the subset of browser automation the extractor needs. Lookups
// report absence through their bool result instead of an error.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Text(ctx context.Context, selector string, timeout time.Duration) (string, bool)
	Attr(ctx context.Context, selector, attr string, timeout time.Duration) (string, bool)
	Visible(ctx context.Context, selector string, timeout time.Duration) bool
	Click(ctx context.Context, selector string, timeout time.Duration) bool
	// Hrefs lists the attribute values of every element matching selector
	Hrefs(ctx context.Context, selector string) []string
	// ClickHref clicks the first element matching selector whose href is href
	ClickHref(ctx context.Context, selector, href string) bool
	HasText(ctx context.Context, selector, pattern string) bool
	Scroll(ctx context.Context, dy float64) error
	Close() error
}

// Browser opens pages. Each scrape owns one page and closes it when done.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// FieldSpec describes one value read from the detail panel. An empty Attr
// reads the element's text.
type FieldSpec struct {
	Name     string
	Selector string
	Attr     string
	Timeout  time.Duration
}

var (
	nameField     = FieldSpec{Name: "name", Selector: "h1.DUwDvf", Timeout: panelTimeout}
	categoryField = FieldSpec{Name: "category", Selector: "button.DkEaL", Timeout: fieldTimeout}
	addressField  = FieldSpec{Name: "address", Selector: `button[data-item-id="address"]`, Timeout: fieldTimeout}
	phoneField    = FieldSpec{Name: "phone", Selector: `button[data-item-id*="phone:tel:"]`, Timeout: fieldTimeout}
	websiteField  = FieldSpec{Name: "website", Selector: `a[data-item-id="authority"]`, Attr: "href", Timeout: fieldTimeout}
	ratingField   = FieldSpec{Name: "rating", Selector: "div.F7kYV span.ceXN1", Timeout: fieldTimeout}
	ratingAlt     = FieldSpec{Name: "rating", Selector: "span.ceXN1", Timeout: fieldTimeout}
	reviewsField  = FieldSpec{Name: "reviews_count", Selector: `button[aria-label*="reviews"], button[aria-label*="reseñas"]`, Timeout: fieldTimeout}
)

// TryExtract reads one field. A missing field is logged once at debug level
// and reported as ("", false); the caller picks the default.
func TryExtract(ctx context.Context, page Page, spec FieldSpec) (string, bool) {
	var (
		value string
		ok    bool
	)
	if spec.Attr == "" {
		value, ok = page.Text(ctx, spec.Selector, spec.Timeout)
	} else {
		value, ok = page.Attr(ctx, spec.Selector, spec.Attr, spec.Timeout)
	}
	if !ok {
		Logger("extractor").WithFields(logrus.Fields{
			"field":    spec.Name,
			"selector": spec.Selector,
		}).Debug("Field not found")
		return "", false
	}
	return value, true
}

// ScrapeOptions controls one scrape run.
type ScrapeOptions struct {
	URL            string
	Niche          string
	MaxLeads       int
	DelayMin       time.Duration
	DelayMax       time.Duration
	ExtractWebsite bool
	ExtractPhone   bool
}

// EventFunc receives progress events while a scrape runs.
type EventFunc func(models.JobEvent)

// MapsScraper walks a map search result list and turns detail panels into
// composed leads.
type MapsScraper struct {
	browser  Browser
	fetcher  SnippetFetcher
	composer *Composer
	checker  WhatsAppChecker

	sleep func(ctx context.Context, d time.Duration) error
}

// NewMapsScraper accepts nil fetcher, composer and checker; each one that is
// nil is skipped. A nil checker lets every lead through.
func NewMapsScraper(browser Browser, fetcher SnippetFetcher, composer *Composer, checker WhatsAppChecker) *MapsScraper {
	return &MapsScraper{
		browser:  browser,
		fetcher:  fetcher,
		composer: composer,
		checker:  checker,
		sleep:    sleepContext,
	}
}

// Scrape runs one search. It returns the leads gathered so far together with
// the error that stopped the run, if any.
func (s *MapsScraper) Scrape(ctx context.Context, opts ScrapeOptions, emit EventFunc) ([]models.Lead, error) {
	if emit == nil {
		emit = func(models.JobEvent) {}
	}
	log := Logger("scraper").WithField("url", opts.URL)

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.WithError(err).Warn("Failed to close page")
		}
	}()

	emit(models.JobEvent{Type: models.EventStatus, Message: "Navigating to " + opts.URL})
	if err := page.Navigate(ctx, opts.URL, pageLoadTimeout); err != nil {
		return nil, fmt.Errorf("navigating to results: %w", err)
	}
	if err := s.sleep(ctx, settleDelay); err != nil {
		return nil, err
	}

	if page.Click(ctx, consentSelector, consentTimeout) {
		log.Debug("Accepted cookie consent")
	}

	var leads []models.Lead
	processed := make(map[string]struct{})
	idle := 0

	for len(leads) < opts.MaxLeads {
		if err := ctx.Err(); err != nil {
			return leads, err
		}

		hrefs := page.Hrefs(ctx, resultLinkSelector)
		if len(hrefs) == 0 {
			emit(models.JobEvent{Type: models.EventInfo, Message: "No more results found or loading..."})
			if err := page.Scroll(ctx, emptyScrollDelta); err != nil {
				return leads, fmt.Errorf("scrolling results: %w", err)
			}
			if err := s.sleep(ctx, scrollPause); err != nil {
				return leads, err
			}
			hrefs = page.Hrefs(ctx, resultLinkSelector)
			if len(hrefs) == 0 {
				break
			}
		}

		visited := 0
		for _, href := range hrefs {
			if len(leads) >= opts.MaxLeads {
				break
			}
			if _, seen := processed[href]; seen || href == "" {
				continue
			}
			processed[href] = struct{}{}
			visited++

			lead, ok := s.visit(ctx, page, href, opts, emit)
			if !ok {
				continue
			}
			leads = append(leads, lead)
			emit(models.JobEvent{Type: models.EventLead, Data: &lead, Count: len(leads)})
		}

		if visited == 0 {
			idle++
			if idle >= maxIdleScrolls {
				log.Info("Result list stopped growing")
				break
			}
		} else {
			idle = 0
		}

		if err := page.Scroll(ctx, pageScrollDelta); err != nil {
			return leads, fmt.Errorf("scrolling results: %w", err)
		}
		if err := s.sleep(ctx, scrollPause); err != nil {
			return leads, err
		}
		if page.HasText(ctx, endOfListSelector, endOfListPattern) {
			log.Info("Reached the end of the result list")
			break
		}
	}

	log.WithField("leads", len(leads)).Info("Scrape finished")
	return leads, nil
}

// visit opens one result and builds its lead. Failures skip the result.
func (s *MapsScraper) visit(ctx context.Context, page Page, href string, opts ScrapeOptions, emit EventFunc) (models.Lead, bool) {
	log := Logger("scraper").WithField("href", href)

	if !page.ClickHref(ctx, resultLinkSelector, href) {
		log.Debug("Result link disappeared before click")
		return models.Lead{}, false
	}
	if err := s.sleep(ctx, RandomDuration(opts.DelayMin, opts.DelayMax)); err != nil {
		return models.Lead{}, false
	}

	lead, err := ExtractDetails(ctx, page, opts)
	if err != nil {
		log.WithError(err).Warn("Error extracting lead")
		return models.Lead{}, false
	}
	lead.GoogleMapsURL = href
	lead.Niche = opts.Niche

	if s.checker != nil && opts.ExtractPhone {
		phone := NormalizePhone(lead.Phone)
		if phone == "" {
			emit(models.JobEvent{Type: models.EventInfo, Message: "Skipping " + lead.Name + ": no usable phone"})
			return models.Lead{}, false
		}
		has, err := s.checker.HasWhatsApp(ctx, phone)
		if err != nil {
			log.WithError(err).Warn("WhatsApp check failed, discarding lead")
		}
		if err != nil || !has {
			emit(models.JobEvent{Type: models.EventInfo, Message: "Skipping " + lead.Name + ": no WhatsApp"})
			return models.Lead{}, false
		}
	}

	if opts.ExtractWebsite && lead.Website != "" && s.fetcher != nil {
		snippet, err := s.fetcher.Fetch(ctx, lead.Website)
		if err != nil {
			log.WithError(err).Debug("Website fetch failed")
			snippet = WebsiteUnavailable
		}
		lead.WebsiteSnippet = snippet
	}

	if s.composer != nil {
		s.composer.Apply(ctx, &lead)
	}
	return lead, true
}

// ExtractDetails reads the open detail panel. Only a missing business name
// is an error; every other field defaults to "".
func ExtractDetails(ctx context.Context, page Page, opts ScrapeOptions) (models.Lead, error) {
	if !page.Visible(ctx, nameField.Selector, nameField.Timeout) {
		return models.Lead{}, ErrDetailNotLoaded
	}

	var lead models.Lead
	lead.Name, _ = TryExtract(ctx, page, nameField)
	lead.Category, _ = TryExtract(ctx, page, categoryField)
	lead.Address, _ = TryExtract(ctx, page, addressField)
	if opts.ExtractPhone {
		lead.Phone, _ = TryExtract(ctx, page, phoneField)
	}
	if opts.ExtractWebsite {
		lead.Website, _ = TryExtract(ctx, page, websiteField)
	}
	if rating, ok := TryExtract(ctx, page, ratingField); ok {
		lead.Rating = rating
	} else {
		lead.Rating, _ = TryExtract(ctx, page, ratingAlt)
	}
	lead.ReviewsCount, _ = TryExtract(ctx, page, reviewsField)
	return lead, nil
}
