package scraper

// CSS selectors used against the live page.
// Centralising them makes future updates trivial.
const (
	// Consent overlay (Didomi banner)
	ConsentButtonSelector = `#didomi-notice-agree-button`

	// Phone reveal
	PhoneButtonSelector = `button[data-testid="view-phone-number"]`
	TelLinkSelector     = `a[href^="tel:"]`
)

// stealthScript runs before any page script and hides the automation
// flag the site's fingerprinting checks first.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`
