package config

import (
	"sort"

	marketpkg "eodprices/pkg/market"

	// Provider types referenced by market.yaml register themselves on import.
	_ "eodprices/pkg/market/stooq"
	_ "eodprices/pkg/market/yahoo"
)

// MustLoadMarket loads etc/market.yaml from the project root and panics on error.
func MustLoadMarket() *marketpkg.Config {
	return marketpkg.MustLoad()
}

// MustBuildFetcher builds the providers of etc/market.yaml and orders them
// with the file's default first.
func MustBuildFetcher() *marketpkg.Fetcher {
	cfg := MustLoadMarket()
	providers, err := cfg.BuildProviders()
	if err != nil {
		panic(err)
	}
	fetcher, err := marketpkg.BuildFetcher(providers, cfg.Default, true)
	if err != nil {
		panic(err)
	}
	return fetcher
}

func providerNames(cfg *marketpkg.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
