// Package parser turns captured page markup into structured data: listing
// links from search pages, ad records from listing pages, and phone
// numbers from revealed markup. It never touches the browser.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/RokasMazelis/carscrape/models"
)

const (
	cardListSelector   = `ul[data-testid="card-list"]`
	cardItemSelector   = `li[data-testid^="listing-card-index-"]`
	nextButtonSelector = `a[data-testid="next-button"]`
)

var (
	adIDTrailingRe = regexp.MustCompile(`/(\d+)$`)
	digitsRe       = regexp.MustCompile(`\d+`)
	longDigitsRe   = regexp.MustCompile(`\d{7,}`)
	nextTextRe     = regexp.MustCompile(`(?i)next`)
)

// SearchPage is the parsed form of one search-results document.
type SearchPage struct {
	Links []models.ListingRef
	// NextURL is where the crawl continues. ExplicitNext reports whether
	// it came from an actual pagination control rather than offset
	// arithmetic; with no explicit control and no links the caller
	// should terminate.
	NextURL      string
	ExplicitNext bool
}

// ParseSearchPage extracts listing links and the next-page URL from a
// search-results document. Links are returned in document order,
// de-duplicated by resolved URL, first occurrence winning.
func ParseSearchPage(markup, baseURL, currentURL string, pageSize int) (SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return SearchPage{}, eris.Wrap(err, "parse search page")
	}

	links := discoverLinks(doc, baseURL)
	next, explicit := nextPageURL(doc, baseURL, currentURL, pageSize)

	return SearchPage{Links: links, NextURL: next, ExplicitNext: explicit}, nil
}

// AdIDFromURL derives the numeric listing id from a URL: the trailing
// run of digits in the path, or failing that the first run of digits in
// the final path segment.
func AdIDFromURL(rawURL string) string {
	trimmed := strings.TrimSuffix(rawURL, "/")
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = u.Scheme + "://" + u.Host + u.Path
		if u.Scheme == "" {
			trimmed = u.Path
		}
	}
	if m := adIDTrailingRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	segs := strings.Split(trimmed, "/")
	return digitsRe.FindString(segs[len(segs)-1])
}

func discoverLinks(doc *goquery.Document, baseURL string) []models.ListingRef {
	var refs []models.ListingRef
	seen := map[string]bool{}

	add := func(href string) {
		full := resolveHref(href, baseURL)
		if seen[full] {
			return
		}
		seen[full] = true
		refs = append(refs, models.ListingRef{ID: AdIDFromURL(full), URL: full})
	}

	// Primary: the canonical card-list container.
	doc.Find(cardListSelector).Find(cardItemSelector).Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		if strings.Contains(href, "/cars-for-sale/") ||
			strings.Contains(href, "/ad/") ||
			strings.Contains(href, "/view/") {
			add(href)
		}
	})

	// Fallback: any anchor that looks like a listing link.
	if len(refs) == 0 {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if (strings.Contains(href, "/cars/") || strings.Contains(href, "/ad/")) &&
				longDigitsRe.MatchString(href) {
				add(href)
			}
		})
	}

	return refs
}

func nextPageURL(doc *goquery.Document, baseURL, currentURL string, pageSize int) (string, bool) {
	if href, ok := doc.Find(nextButtonSelector).First().Attr("href"); ok {
		return resolveHref(href, baseURL), true
	}

	var textHref string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if nextTextRe.MatchString(strings.TrimSpace(a.Text())) {
			textHref, _ = a.Attr("href")
			return false
		}
		return true
	})
	if textHref != "" {
		return resolveHref(textHref, baseURL), true
	}

	return offsetNext(currentURL, pageSize), false
}

// offsetNext advances the start query parameter by the page size,
// appending start=<pageSize> when the URL carries none.
func offsetNext(currentURL string, pageSize int) string {
	u, err := url.Parse(currentURL)
	if err != nil {
		return currentURL
	}
	q := u.Query()
	start := 0
	if raw := q.Get("start"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			start = n
		}
	}
	q.Set("start", fmt.Sprint(start+pageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

func resolveHref(href, baseURL string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return baseURL + href
}
