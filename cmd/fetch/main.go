// Command fetch resolves one ticker through the configured providers and
// prints the observation as JSON. Nothing is stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"eodprices/internal/config"
	marketpkg "eodprices/pkg/market"
)

func main() {
	configPath := flag.String("f", "", "the config file; empty uses etc/market.yaml with every provider")
	ticker := flag.String("ticker", "", "ticker to fetch")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	log.SetFlags(log.Ltime)
	if *ticker == "" {
		log.Fatalf("[fetch] -ticker is required")
	}

	var fetcher *marketpkg.Fetcher
	if *configPath == "" {
		fetcher = config.MustBuildFetcher()
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[fetch] load config: %v", err)
		}
		providers, err := cfg.Market.Value.BuildProviders()
		if err != nil {
			log.Fatalf("[fetch] build providers: %v", err)
		}
		fetcher, err = marketpkg.BuildFetcher(providers, cfg.Prices.Primary, cfg.Prices.Fallback)
		if err != nil {
			log.Fatalf("[fetch] %v", err)
		}
	}
	log.Printf("[fetch] sources: %v", fetcher.Sources())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	obs, err := fetcher.FetchLatestPrice(ctx, *ticker)
	if err != nil {
		log.Fatalf("[fetch] %s: %v", *ticker, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(obs); err != nil {
		log.Fatalf("[fetch] encode: %v", err)
	}
}
