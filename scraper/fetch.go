package scraper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/models"
)

// FetchDocument navigates to url and returns the rendered markup after
// the settle delay and a best-effort consent dismissal.
func (s *Session) FetchDocument(ctx context.Context, url string) (string, error) {
	html, _, err := s.fetch(ctx, url, false)
	return html, err
}

// FetchAd loads a listing page and additionally runs the phone reveal
// before capturing markup, so one page load serves both.
func (s *Session) FetchAd(ctx context.Context, url string) (string, models.PhoneOutcome, error) {
	return s.fetch(ctx, url, true)
}

func (s *Session) fetch(ctx context.Context, url string, reveal bool) (string, models.PhoneOutcome, error) {
	if err := s.Ensure(ctx); err != nil {
		return "", models.PhoneFailed(), err
	}

	b := s.cfg.Browser
	navCtx, cancel := context.WithTimeout(s.tabCtx, b.NavTimeout)
	defer cancel()

	zap.L().Info("fetching page", zap.String("url", url))

	if err := chromedp.Run(navCtx,
		navigateDOMReady(url),
		chromedp.Sleep(b.SettleDelay),
	); err != nil {
		s.screenshot("debug_fetch_fail")
		return "", models.PhoneFailed(), eris.Wrapf(err, "navigate %s", url)
	}

	s.dismissConsent(navCtx)

	phone := models.Hidden()
	if reveal {
		phone = s.revealPhone(navCtx)
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html)); err != nil {
		s.screenshot("debug_fetch_fail")
		return "", models.PhoneFailed(), eris.Wrapf(err, "capture markup %s", url)
	}

	zap.L().Debug("fetched markup", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, phone, nil
}

// navigateDOMReady navigates and returns at DOMContentLoaded rather
// than full load; render-blocking resources are irrelevant to
// extraction, and the settle delay covers hydration.
func navigateDOMReady(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ready := make(chan struct{}, 1)
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(lctx, func(ev interface{}) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case ready <- struct{}{}:
				default:
				}
			}
		})

		if _, _, _, err := page.Navigate(url).Do(ctx); err != nil {
			return err
		}

		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// dismissConsent probes for the consent overlay and clicks it if it is
// interactable within the bound. Overlays are optional; failure to
// find or click is swallowed.
func (s *Session) dismissConsent(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Browser.ConsentWait)
	defer cancel()

	err := chromedp.Run(cctx,
		chromedp.Click(ConsentButtonSelector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(time.Second),
	)
	if err == nil {
		zap.L().Debug("dismissed consent overlay")
	}
}

// screenshot captures a diagnostic image keyed by epoch timestamp.
// Best-effort: its own failures are swallowed.
func (s *Session) screenshot(prefix string) {
	if s.tabCtx == nil {
		return
	}
	sctx, cancel := context.WithTimeout(s.tabCtx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(sctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return
	}
	path := fmt.Sprintf("%s_%d.png", prefix, time.Now().Unix())
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return
	}
	zap.L().Info("saved debug screenshot", zap.String("path", path))
}
