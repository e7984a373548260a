package scraper

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/models"
	"github.com/RokasMazelis/carscrape/parser"
)

type clickResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// revealPhone drives the reveal state machine on the already-loaded
// listing page: enumerate reveal controls, click the first clickable
// one, wait for the tel-link indicator, then run the extraction
// strategies in order. "No number found" is a common, non-exceptional
// outcome and terminates as Hidden, never as an error; page/session
// faults are handled upstream by the fetcher.
func (s *Session) revealPhone(ctx context.Context) models.PhoneOutcome {
	count, err := s.countRevealButtons(ctx)
	if err != nil {
		zap.L().Warn("enumerate reveal buttons", zap.Error(err))
		return models.Hidden()
	}
	zap.L().Info("phone reveal", zap.Int("buttons", count))

	// The reveal control may be duplicated across layout variants. Try
	// candidates in document order; one bad candidate must not abort
	// the search.
	clicked := false
	for i := 0; i < count && !clicked; i++ {
		res, err := s.clickRevealButton(ctx, i)
		if err != nil {
			zap.L().Warn("click reveal button", zap.Int("index", i), zap.Error(err))
			continue
		}
		if !res.OK {
			zap.L().Debug("skipped reveal button",
				zap.Int("index", i), zap.String("reason", res.Reason))
			continue
		}
		clicked = true
	}

	if clicked {
		s.waitForReveal(ctx)
	} else if count > 0 {
		zap.L().Warn("no reveal button was clickable")
	}

	// Extract regardless of click success: the number may already be
	// present in markup (previously revealed, or exposed via embedded
	// data).
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		zap.L().Warn("capture markup for phone extraction", zap.Error(err))
		s.screenshot("debug_phone_fail")
		return models.Hidden()
	}

	if num, ok := parser.PhoneFromTelLink(html); ok {
		zap.L().Info("phone found via tel link", zap.String("phone", num))
		return models.Revealed(num)
	}

	texts, err := s.revealButtonTexts(ctx)
	if err == nil {
		for _, text := range texts {
			if num, ok := parser.PhoneFromText(text); ok {
				zap.L().Info("phone found in button text", zap.String("phone", num))
				return models.Revealed(num)
			}
		}
	}

	zap.L().Warn("phone reveal failed, returning hidden")
	s.screenshot("debug_phone_fail")
	return models.Hidden()
}

func (s *Session) countRevealButtons(ctx context.Context) (int, error) {
	var count int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, PhoneButtonSelector)
	err := chromedp.Run(ctx, chromedp.Evaluate(script, &count))
	return count, err
}

// clickRevealButton scrolls the i-th reveal control into view and
// clicks it, reporting why a candidate was skipped. One JS round-trip,
// bounded by the click timeout.
func (s *Session) clickRevealButton(ctx context.Context, i int) (clickResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Browser.ClickTimeout)
	defer cancel()

	script := fmt.Sprintf(`
		(() => {
			const btns = document.querySelectorAll(%q);
			if (btns.length <= %d) return { ok: false, reason: 'missing' };
			const btn  = btns[%d];
			const rect = btn.getBoundingClientRect();
			const visible = !!(btn.offsetParent || (rect.width && rect.height));
			if (!visible) return { ok: false, reason: 'not visible' };
			btn.scrollIntoView({ block: 'center' });
			btn.click();
			return { ok: true, reason: '' };
		})();
	`, PhoneButtonSelector, i, i)

	var res clickResult
	err := chromedp.Run(cctx, chromedp.Evaluate(script, &res))
	return res, err
}

// waitForReveal waits for the tel-link indicator to appear after a
// click. On timeout it falls through with a grace sleep; the wait alone
// never fails the operation.
func (s *Session) waitForReveal(ctx context.Context) {
	b := s.cfg.Browser
	wctx, cancel := context.WithTimeout(ctx, b.RevealWait)
	defer cancel()

	if err := chromedp.Run(wctx, chromedp.WaitVisible(TelLinkSelector, chromedp.ByQuery)); err != nil {
		zap.L().Warn("no tel link appeared, checking button text instead")
		_ = chromedp.Run(ctx, chromedp.Sleep(b.RevealGrace))
		return
	}
	zap.L().Debug("tel link appeared")
}

func (s *Session) revealButtonTexts(ctx context.Context) ([]string, error) {
	script := fmt.Sprintf(`
		Array.from(document.querySelectorAll(%q))
			.filter(b => b.offsetParent || b.getBoundingClientRect().width)
			.map(b => b.innerText);
	`, PhoneButtonSelector)

	var texts []string
	err := chromedp.Run(ctx, chromedp.Evaluate(script, &texts))
	return texts, err
}
