package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RokasMazelis/carscrape/config"
	"github.com/RokasMazelis/carscrape/models"
	"github.com/RokasMazelis/carscrape/scraper"
	"github.com/RokasMazelis/carscrape/services"
	"github.com/RokasMazelis/carscrape/storage"
	"github.com/RokasMazelis/carscrape/utils"
)

var cfg *config.Config

var (
	flagMaxPages int
	flagMaxAds   int
	flagOut      string
	flagWorkers  int
)

var rootCmd = &cobra.Command{
	Use:   "carscrape",
	Short: "DoneDeal vehicle-listing harvester",
	Long: "Crawls DoneDeal search pages through a proxied browser session, " +
		"reveals seller phone numbers and appends normalized rows incrementally.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if cmd.Flags().Changed("max-pages") {
			cfg.Harvest.MaxPages = flagMaxPages
		}
		if cmd.Flags().Changed("max-ads") {
			cfg.Harvest.MaxAds = flagMaxAds
		}
		if cmd.Flags().Changed("out") {
			cfg.Harvest.OutFile = flagOut
		}
		if cmd.Flags().Changed("workers") {
			cfg.Harvest.Workers = flagWorkers
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <search-url>",
	Short: "Crawl paginated search results starting at the given URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := scraper.New(*cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		stores, cleanup, err := buildStores()
		if err != nil {
			return err
		}
		defer cleanup()

		h := services.NewHarvester(*cfg, session, stores...)
		records, err := h.Run(cmd.Context(), args[0])
		if err != nil {
			zap.L().Warn("harvest finished with nothing to show", zap.Error(err))
		}
		printSummary(records)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <listing-url>...",
	Short: "Harvest a direct list of listing URLs, bypassing pagination",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, cleanup, err := buildStores()
		if err != nil {
			return err
		}
		defer cleanup()

		var records []models.AdRecord
		if cfg.Harvest.Workers > 1 {
			records = services.RunBatch(cmd.Context(), *cfg, args, func() (services.PageClient, error) {
				return scraper.New(*cfg)
			}, stores...)
		} else {
			session, err := scraper.New(*cfg)
			if err != nil {
				return err
			}
			defer session.Close()
			h := services.NewHarvester(*cfg, session, stores...)
			records = h.RunDirect(cmd.Context(), args)
		}

		printSummary(records)
		return nil
	},
}

func buildStores() ([]services.Store, func(), error) {
	stores := []services.Store{storage.NewCSVStore(cfg.Harvest.OutFile)}
	cleanup := func() {}

	if cfg.Harvest.OutNDJSON != "" {
		stores = append(stores, storage.NewNDJSONStore(cfg.Harvest.OutNDJSON))
	}
	if cfg.DB.URL != "" {
		pg, err := storage.NewPostgresStore(cfg.DB.URL)
		if err != nil {
			return nil, nil, err
		}
		stores = append(stores, pg)
		cleanup = func() { _ = pg.Close() }
	}
	return stores, cleanup, nil
}

func printSummary(records []models.AdRecord) {
	stats := utils.BuildHarvestStats(records)

	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("  DONE — %d ads → %s\n", stats.TotalAds, cfg.Harvest.OutFile)
	fmt.Printf("    revealed: %d   hidden: %d   errored: %d\n",
		stats.Revealed, stats.Hidden, stats.Errored)
	if stats.PricedAdsCount > 0 {
		fmt.Printf("    price avg €%.0f (min €%.0f, max €%.0f over %d priced ads)\n",
			stats.AveragePrice, stats.MinimumPrice, stats.MaximumPrice, stats.PricedAdsCount)
	}
	for _, cc := range stats.AdsPerCounty {
		fmt.Printf("    %-14s %d\n", cc.County+":", cc.Count)
	}
	fmt.Println("═══════════════════════════════════════════════════")
}

func main() {
	rootCmd.PersistentFlags().IntVar(&flagMaxPages, "max-pages", 1, "search pages to crawl")
	rootCmd.PersistentFlags().IntVar(&flagMaxAds, "max-ads", 0, "overall ad limit (0 = per-page cap only)")
	rootCmd.PersistentFlags().StringVar(&flagOut, "out", "donedeal_cars.csv", "output CSV path")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 1, "batch workers, one session each")
	rootCmd.AddCommand(runCmd, batchCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
