// Package scraper owns the browser side of the harvest: one evasion-
// configured Chrome session, page fetching, and the phone-reveal state
// machine. Parsing of the captured markup lives in package parser.
package scraper

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/config"
)

// Session owns one browser process and one evasion-configured tab,
// created lazily on first use and reused for every fetch in a run.
// Not safe for concurrent use; each worker needs its own Session.
type Session struct {
	cfg config.Config

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	createdAt time.Time
}

// New validates the proxy credentials and returns an unstarted session.
// The browser itself launches on the first Ensure.
func New(cfg config.Config) (*Session, error) {
	if err := cfg.Proxy.Validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg}, nil
}

// Ensure launches the browser and tab exactly once. Idempotent.
func (s *Session) Ensure(ctx context.Context) error {
	if s.tabCtx != nil {
		return nil
	}

	b := s.cfg.Browser
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.UserAgent(b.UserAgent),
		chromedp.WindowSize(b.Width, b.Height),
		chromedp.ProxyServer("http://"+s.cfg.Proxy.Server()),
	)

	s.allocCtx, s.cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	s.tabCtx, s.cancelTab = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			zap.S().Debugf(format, args...)
		}),
	)

	s.routeProxyAuth()

	zap.L().Info("launching browser session",
		zap.String("proxy", s.cfg.Proxy.Server()),
		zap.String("proxy_user", s.cfg.Proxy.Username),
	)

	if err := chromedp.Run(s.tabCtx,
		fetch.Enable().WithHandleAuthRequests(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		emulation.SetTimezoneOverride(b.Timezone),
		emulation.SetLocaleOverride().WithLocale(b.Locale),
		emulation.SetGeolocationOverride().
			WithLatitude(b.Latitude).
			WithLongitude(b.Longitude).
			WithAccuracy(1),
	); err != nil {
		s.Close()
		return eris.Wrap(err, "bootstrap browser session")
	}

	s.createdAt = time.Now()
	zap.L().Info("browser session initialized")
	return nil
}

// routeProxyAuth answers the proxy's auth challenges with the configured
// credentials and resumes every paused request (a side effect of
// enabling the fetch domain for auth handling).
func (s *Session) routeProxyAuth() {
	tabCtx := s.tabCtx
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				c := chromedp.FromContext(tabCtx)
				execCtx := cdp.WithExecutor(tabCtx, c.Target)
				_ = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
			}()
		case *fetch.EventAuthRequired:
			go func() {
				c := chromedp.FromContext(tabCtx)
				execCtx := cdp.WithExecutor(tabCtx, c.Target)
				_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: s.cfg.Proxy.Username,
					Password: s.cfg.Proxy.Password,
				}).Do(execCtx)
			}()
		}
	})
}

// Close releases the tab and browser in reverse-acquisition order.
// Safe without a prior Ensure and safe to call repeatedly.
func (s *Session) Close() {
	if s.cancelTab != nil {
		s.cancelTab()
		s.cancelTab = nil
		s.tabCtx = nil
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
		s.cancelAlloc = nil
		s.allocCtx = nil
	}
	if !s.createdAt.IsZero() {
		zap.L().Info("browser session closed",
			zap.Duration("session_duration", time.Since(s.createdAt)))
		s.createdAt = time.Time{}
	}
}
