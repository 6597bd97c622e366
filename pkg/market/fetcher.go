package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
)

// Fetcher tries its sources in order and every symbol variant per source,
// returning the first usable observation.
type Fetcher struct {
	sources []Provider
}

// NewFetcher builds a fetcher over primary followed by fallbacks.
func NewFetcher(primary Provider, fallbacks ...Provider) *Fetcher {
	sources := make([]Provider, 0, 1+len(fallbacks))
	for _, p := range append([]Provider{primary}, fallbacks...) {
		if p != nil {
			sources = append(sources, p)
		}
	}
	return &Fetcher{sources: sources}
}

// BuildFetcher orders providers with primary first. When fallback is enabled the
// remaining providers follow in name order.
func BuildFetcher(providers map[string]Provider, primary string, fallback bool) (*Fetcher, error) {
	primary = strings.ToLower(strings.TrimSpace(primary))
	first, ok := providers[primary]
	if !ok || first == nil {
		return nil, fmt.Errorf("market: primary provider %q not configured", primary)
	}
	if !fallback {
		return NewFetcher(first), nil
	}
	names := make([]string, 0, len(providers))
	for name := range providers {
		if name != primary {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	rest := make([]Provider, 0, len(names))
	for _, name := range names {
		rest = append(rest, providers[name])
	}
	return NewFetcher(first, rest...), nil
}

// Sources returns the provider names in the order they are tried.
func (f *Fetcher) Sources() []string {
	names := make([]string, 0, len(f.sources))
	for _, p := range f.sources {
		names = append(names, p.Name())
	}
	return names
}

// FetchLatestPrice returns the latest close for ticker, or ErrNoPrice when every
// source and variant came back empty.
func (f *Fetcher) FetchLatestPrice(ctx context.Context, ticker string) (*Observation, error) {
	ticker = NormalizeTicker(ticker)
	variants := SymbolVariants(ticker)
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: empty ticker", ErrNoPrice)
	}

	var errs []error
	for _, src := range f.sources {
		obs, err := f.fetchFrom(ctx, src, variants)
		if err == nil {
			obs.Ticker = ticker
			obs.Source = src.Name()
			return obs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.WithContext(ctx).Infof("market: %s has no price for %s: %v", src.Name(), ticker, err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w for %s: %w", ErrNoPrice, ticker, errors.Join(errs...))
}

func (f *Fetcher) fetchFrom(ctx context.Context, src Provider, variants []string) (*Observation, error) {
	var errs []error
	for _, symbol := range variants {
		obs, err := src.Fetch(ctx, symbol)
		if err == nil && obs.Valid() {
			return obs, nil
		}
		if err == nil {
			err = fmt.Errorf("%s %s: %w", src.Name(), symbol, ErrSymbolNotFound)
		}
		errs = append(errs, err)
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
