package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/RokasMazelis/carscrape/models"
)

var euroPriceRe = regexp.MustCompile(`€[\d,]+`)

// nextData mirrors the slice of the embedded __NEXT_DATA__ payload we
// care about: the seller phone in any of its known locations.
type nextData struct {
	Props struct {
		PageProps struct {
			Ad struct {
				Phone   string `json:"phone"`
				Contact struct {
					Phone string `json:"phone"`
				} `json:"contact"`
				Seller struct {
					Phone string `json:"phone"`
				} `json:"seller"`
			} `json:"ad"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ExtractAd parses a listing document into a record. Individual field
// failures fall back to sentinels; this never returns an error.
//
// The phone argument is the revealer's outcome. A genuinely populated
// phone in the embedded data payload overrides it; masked values
// ("Hidden", anything containing ***) are ignored.
func ExtractAd(markup, adURL string, phone models.PhoneOutcome) models.AdRecord {
	rec := models.AdRecord{
		ID:         AdIDFromURL(adURL),
		URL:        adURL,
		Title:      "N/A",
		Price:      "N/A",
		Phone:      phone,
		Attributes: map[string]string{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return rec
	}

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		rec.Title = title
	}
	rec.Price = extractPrice(doc)
	rec.Attributes = extractAttributes(doc)

	if num, ok := embeddedPhone(doc); ok {
		rec.Phone = models.Revealed(num)
	}

	return rec
}

func extractPrice(doc *goquery.Document) string {
	priceDiv := doc.Find("div.Price").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "€")
	}).First()
	if priceDiv.Length() > 0 {
		return strings.TrimSpace(priceDiv.Text())
	}
	if m := euroPriceRe.FindString(doc.Text()); m != "" {
		return m
	}
	return "N/A"
}

// extractAttributes merges the key-info panel and the details table,
// keyed by visible label. Details-table values win on collision.
func extractAttributes(doc *goquery.Document) map[string]string {
	attrs := map[string]string{}

	doc.Find(`[class*="KeyInfoListItem"]`).Each(func(_ int, item *goquery.Selection) {
		divs := item.ChildrenFiltered("div")
		if divs.Length() < 2 {
			return
		}
		key := strings.TrimSpace(divs.Eq(0).Text())
		val := strings.TrimSpace(divs.Eq(1).Text())
		if key != "" && val != "" {
			attrs[key] = val
		}
	})

	doc.Find(`[data-testid="list-item"]`).Each(func(_ int, item *goquery.Selection) {
		key := strings.TrimSpace(item.Find(`p[class*="ListItemName"]`).First().Text())
		val := strings.TrimSpace(item.Find(`p[class*="ListItemValue"]`).First().Text())
		if key != "" && val != "" {
			attrs[key] = val
		}
	})

	return attrs
}

func embeddedPhone(doc *goquery.Document) (string, bool) {
	raw := doc.Find(`script#__NEXT_DATA__`).First().Text()
	if raw == "" {
		return "", false
	}
	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", false
	}

	ad := data.Props.PageProps.Ad
	candidate := ad.Phone
	if candidate == "" {
		candidate = ad.Contact.Phone
	}
	if candidate == "" {
		candidate = ad.Seller.Phone
	}

	if candidate == "" ||
		strings.Contains(candidate, "Hidden") ||
		strings.Contains(candidate, "***") {
		return "", false
	}
	return candidate, true
}
