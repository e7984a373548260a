package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/config"
	"github.com/RokasMazelis/carscrape/models"
)

// RunBatch processes a direct-URL batch across a bounded worker pool.
// Each worker owns an independent session from newClient; the
// underlying browser context is not safe for concurrent navigation, so
// sessions are never shared. Records come back in input order, with
// failed ads skipped. Stores must be safe for concurrent appends.
func RunBatch(ctx context.Context, cfg config.Config, urls []string,
	newClient func() (PageClient, error), stores ...Store) []models.AdRecord {

	if cfg.Harvest.MaxAds > 0 && len(urls) > cfg.Harvest.MaxAds {
		urls = urls[:cfg.Harvest.MaxAds]
	}

	workers := cfg.Harvest.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}

	type adJob struct {
		index int
		url   string
	}
	type adResult struct {
		index int
		rec   models.AdRecord
		ok    bool
	}

	jobs := make(chan adJob)
	results := make(chan adResult, len(urls))

	var wg sync.WaitGroup
	for workerID := 0; workerID < workers; workerID++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			client, err := newClient()
			if err != nil {
				zap.L().Error("start batch worker", zap.Int("worker", id), zap.Error(err))
				for job := range jobs {
					results <- adResult{index: job.index}
				}
				return
			}
			defer client.Close()

			h := NewHarvester(cfg, client, stores...)
			for job := range jobs {
				zap.L().Info("batch worker picked ad",
					zap.Int("worker", id), zap.String("url", job.url))
				rec, ok := h.harvestAd(ctx, job.url)
				if ok {
					h.persist(ctx, rec)
				}
				results <- adResult{index: job.index, rec: rec, ok: ok}
			}
		}(workerID)
	}

	go func() {
		for i, url := range urls {
			jobs <- adJob{index: i, url: url}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	ordered := make([]adResult, len(urls))
	for res := range results {
		ordered[res.index] = res
	}

	records := make([]models.AdRecord, 0, len(urls))
	for _, res := range ordered {
		if res.ok {
			records = append(records, res.rec)
		}
	}
	return records
}
