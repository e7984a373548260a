package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RokasMazelis/carscrape/models"
)

const adURL = "https://www.donedeal.ie/cars-for-sale/opel-grandland-gs-line/39669123"

const adHTML = `<!doctype html><html><body>
<h1>Opel Grandland GS Line</h1>
<div class="Price mb4">€28,950</div>
<ul>
  <li data-testid="list-item">
    <p class="ListItemName_abc">Make</p>
    <p class="ListItemValue_abc">Opel</p>
  </li>
  <li data-testid="list-item">
    <p class="ListItemName_abc">Mileage</p>
    <p class="ListItemValue_abc">42,000 km</p>
  </li>
  <li data-testid="list-item">
    <p class="ListItemName_abc">Warranty Duration</p>
    <p class="ListItemValue_abc">12 months</p>
  </li>
</ul>
<ul>
  <li class="KeyInfoListItem_xyz"><div>Year</div><div>2022</div></li>
  <li class="KeyInfoListItem_xyz"><div>Mileage</div><div>41,999 km</div></li>
  <li class="KeyInfoListItem_xyz"><div>County</div><div>Dublin</div></li>
</ul>
</body></html>`

func TestExtractAd_Fields(t *testing.T) {
	rec := ExtractAd(adHTML, adURL, models.Hidden())

	assert.Equal(t, "39669123", rec.ID)
	assert.Equal(t, adURL, rec.URL)
	assert.Equal(t, "Opel Grandland GS Line", rec.Title)
	assert.Equal(t, "€28,950", rec.Price)
	assert.Equal(t, "Opel", rec.Attributes["Make"])
	assert.Equal(t, "2022", rec.Attributes["Year"])
	assert.Equal(t, "Dublin", rec.Attributes["County"])
	assert.Equal(t, "12 months", rec.Attributes["Warranty Duration"])
}

// Both panels carry Mileage with different values; the details table
// wins.
func TestExtractAd_DetailsTablePrecedence(t *testing.T) {
	rec := ExtractAd(adHTML, adURL, models.Hidden())
	assert.Equal(t, "42,000 km", rec.Attributes["Mileage"])
}

func TestExtractAd_Sentinels(t *testing.T) {
	rec := ExtractAd("<html><body><p>nothing here</p></body></html>", adURL, models.Hidden())

	assert.Equal(t, "N/A", rec.Title)
	assert.Equal(t, "N/A", rec.Price)
	assert.Empty(t, rec.Attributes)
	assert.Equal(t, models.PhoneHidden, rec.Phone.Status)
}

func TestExtractAd_PriceFreeTextFallback(t *testing.T) {
	html := `<html><body><h1>Car</h1><span>Asking €9,500 or near offer</span></body></html>`
	rec := ExtractAd(html, adURL, models.Hidden())
	assert.Equal(t, "€9,500", rec.Price)
}

func TestExtractAd_EmbeddedPhoneOverride(t *testing.T) {
	html := `<html><body><h1>Car</h1>
	<script id="__NEXT_DATA__" type="application/json">
	{"props":{"pageProps":{"ad":{"seller":{"phone":"0871234567"}}}}}
	</script></body></html>`

	rec := ExtractAd(html, adURL, models.Hidden())

	require.Equal(t, models.PhoneRevealed, rec.Phone.Status)
	assert.Equal(t, "0871234567", rec.Phone.Number)
}

// A masked embedded value must be ignored in favour of the DOM-derived
// outcome.
func TestExtractAd_EmbeddedPhoneMasked(t *testing.T) {
	html := `<html><body><h1>Car</h1>
	<script id="__NEXT_DATA__" type="application/json">
	{"props":{"pageProps":{"ad":{"phone":"087***"}}}}
	</script></body></html>`

	dom := models.Revealed("0831234567")
	rec := ExtractAd(html, adURL, dom)

	assert.Equal(t, dom, rec.Phone)
}

func TestExtractAd_EmbeddedPhoneHiddenSentinel(t *testing.T) {
	html := `<html><body><h1>Car</h1>
	<script id="__NEXT_DATA__" type="application/json">
	{"props":{"pageProps":{"ad":{"contact":{"phone":"Hidden"}}}}}
	</script></body></html>`

	rec := ExtractAd(html, adURL, models.Hidden())
	assert.Equal(t, models.PhoneHidden, rec.Phone.Status)
}
