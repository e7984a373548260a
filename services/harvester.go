// Package services drives the harvest: the page-by-page / ad-by-ad loop
// over one browser session, and a worker-pool runner for direct-URL
// batches.
package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/config"
	"github.com/RokasMazelis/carscrape/models"
	"github.com/RokasMazelis/carscrape/parser"
)

// PageClient is the browser-session capability the harvester depends on.
// *scraper.Session implements it.
type PageClient interface {
	FetchDocument(ctx context.Context, url string) (string, error)
	FetchAd(ctx context.Context, url string) (string, models.PhoneOutcome, error)
	Close()
}

// Store persists one record. Appends happen immediately after each ad
// so a mid-run failure loses at most one record.
type Store interface {
	Append(ctx context.Context, rec models.AdRecord) error
}

// Harvester walks search pages, harvests each discovered listing and
// persists records incrementally.
type Harvester struct {
	cfg    config.Config
	client PageClient
	stores []Store
}

func NewHarvester(cfg config.Config, client PageClient, stores ...Store) *Harvester {
	return &Harvester{cfg: cfg, client: client, stores: stores}
}

// Run crawls search pages starting at startURL until a page fetch
// fails, pagination cannot advance, the page limit is hit, or the ad
// limit is reached. It always returns whatever records completed.
func (h *Harvester) Run(ctx context.Context, startURL string) ([]models.AdRecord, error) {
	var all []models.AdRecord
	hc := h.cfg.Harvest
	current := startURL

	for pageNum := 1; pageNum <= hc.MaxPages; pageNum++ {
		zap.L().Info("search page",
			zap.Int("page", pageNum), zap.Int("max_pages", hc.MaxPages),
			zap.String("url", current))

		markup, err := h.client.FetchDocument(ctx, current)
		if err != nil {
			zap.L().Error("fetch search page", zap.String("url", current), zap.Error(err))
			break
		}

		sp, err := parser.ParseSearchPage(markup, h.cfg.BaseURL, current, h.cfg.PageSize)
		if err != nil {
			zap.L().Error("parse search page", zap.Error(err))
			break
		}
		zap.L().Info("discovered listings", zap.Int("count", len(sp.Links)), zap.Int("page", pageNum))

		links := h.limitLinks(sp.Links, len(all))

		for _, ref := range links {
			rec, ok := h.harvestAd(ctx, ref.URL)
			if !ok {
				continue
			}
			h.persist(ctx, rec)
			all = append(all, rec)

			if hc.MaxAds > 0 && len(all) >= hc.MaxAds {
				zap.L().Info("reached ad limit", zap.Int("max_ads", hc.MaxAds))
				return all, nil
			}
			time.Sleep(hc.AdDelay)
		}

		if !sp.ExplicitNext && len(sp.Links) == 0 {
			zap.L().Info("no listings and no next control, stopping")
			break
		}
		current = sp.NextURL
	}

	if len(all) == 0 {
		return nil, eris.New("no ads harvested")
	}
	return all, nil
}

// RunDirect processes a flat list of listing URLs, bypassing pagination.
func (h *Harvester) RunDirect(ctx context.Context, urls []string) []models.AdRecord {
	hc := h.cfg.Harvest
	if hc.MaxAds > 0 && len(urls) > hc.MaxAds {
		urls = urls[:hc.MaxAds]
	}

	var all []models.AdRecord
	for i, url := range urls {
		zap.L().Info("direct listing",
			zap.Int("n", i+1), zap.Int("total", len(urls)), zap.String("url", url))

		rec, ok := h.harvestAd(ctx, url)
		if !ok {
			continue
		}
		h.persist(ctx, rec)
		all = append(all, rec)
		time.Sleep(hc.AdDelay)
	}
	return all
}

// harvestAd fetches one listing with bounded retries on navigation
// failure. A Hidden phone outcome is terminal and never retried; only a
// missing document (page/session fault) is retryable. After exhausting
// retries the ad is skipped.
func (h *Harvester) harvestAd(ctx context.Context, url string) (models.AdRecord, bool) {
	hc := h.cfg.Harvest

	var markup string
	var phone models.PhoneOutcome
	for attempt := 0; attempt <= hc.FetchRetries; attempt++ {
		var err error
		markup, phone, err = h.client.FetchAd(ctx, url)
		if markup != "" {
			break
		}
		zap.L().Warn("ad fetch failed",
			zap.Int("attempt", attempt+1), zap.String("url", url), zap.Error(err))
		if attempt < hc.FetchRetries {
			time.Sleep(hc.RetryBackoff)
		}
	}
	if markup == "" {
		zap.L().Error("giving up on ad",
			zap.Int("attempts", hc.FetchRetries+1), zap.String("url", url))
		return models.AdRecord{}, false
	}

	rec := parser.ExtractAd(markup, url, phone)
	zap.L().Info("harvested ad",
		zap.String("id", rec.ID),
		zap.String("phone", rec.Phone.String()),
		zap.String("title", rec.Title))
	return rec, true
}

// persist appends to every store; a store failure is logged, not fatal.
func (h *Harvester) persist(ctx context.Context, rec models.AdRecord) {
	for _, st := range h.stores {
		if err := st.Append(ctx, rec); err != nil {
			zap.L().Error("persist record", zap.String("id", rec.ID), zap.Error(err))
		}
	}
}

// limitLinks applies the remaining explicit ad budget, or the default
// per-page cap when no explicit limit is set.
func (h *Harvester) limitLinks(links []models.ListingRef, harvested int) []models.ListingRef {
	hc := h.cfg.Harvest
	if hc.MaxAds > 0 {
		remaining := hc.MaxAds - harvested
		if remaining <= 0 {
			return nil
		}
		if len(links) > remaining {
			zap.L().Info("limiting page to remaining ad budget", zap.Int("remaining", remaining))
			return links[:remaining]
		}
		return links
	}
	if hc.PageCap > 0 && len(links) > hc.PageCap {
		zap.L().Info("limiting page to default cap", zap.Int("cap", hc.PageCap))
		return links[:hc.PageCap]
	}
	return links
}
