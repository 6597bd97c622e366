// Package yahoo implements the session-based chart plus quote price provider.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"eodprices/pkg/httpx"
	"eodprices/pkg/market"
	"eodprices/pkg/market/session"
)

const (
	defaultBaseURL      = "https://query1.finance.yahoo.com"
	defaultCookieURL    = "https://fc.yahoo.com"
	defaultCrumbPath    = "/v1/test/getcrumb"
	defaultHistoryRange = "1y"
)

func init() {
	market.RegisterProvider("yahoo", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		client := httpx.NewClient(cfg.ClientOptions()...)
		base := firstNonEmpty(cfg.BaseURL, defaultBaseURL)
		sessions := session.NewManager(client, session.Config{
			CookieURL: firstNonEmpty(cfg.CookieURL, defaultCookieURL),
			CrumbURL:  firstNonEmpty(cfg.CrumbURL, strings.TrimRight(base, "/")+defaultCrumbPath),
			TTL:       cfg.SessionTTL,
			Cooldown:  cfg.BlockCooldown,
		})
		return NewProvider(name, client, sessions,
			WithBaseURL(base),
			WithHistoryRange(cfg.HistoryRange),
			WithHistoryDays(cfg.HistoryDays),
		), nil
	})
}

// Provider fetches chart history and quote snapshots behind a cookie plus crumb session.
type Provider struct {
	name         string
	client       *httpx.Client
	sessions     *session.Manager
	baseURL      string
	historyRange string
	historyDays  int
}

// Option customises the provider.
type Option func(*Provider)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHistoryRange sets the chart range parameter, e.g. "6mo" or "1y".
func WithHistoryRange(r string) Option {
	return func(p *Provider) {
		if r != "" {
			p.historyRange = r
		}
	}
}

// WithHistoryDays caps the number of history points returned.
func WithHistoryDays(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.historyDays = n
		}
	}
}

// NewProvider constructs a provider sharing the given client and session manager.
func NewProvider(name string, client *httpx.Client, sessions *session.Manager, opts ...Option) *Provider {
	if name == "" {
		name = "yahoo"
	}
	p := &Provider{
		name:         name,
		client:       client,
		sessions:     sessions,
		baseURL:      defaultBaseURL,
		historyRange: defaultHistoryRange,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Session exposes the session manager for status reporting.
func (p *Provider) Session() *session.Manager { return p.sessions }

// Fetch returns the merged chart and quote observation for symbol.
func (p *Provider) Fetch(ctx context.Context, symbol string) (*market.Observation, error) {
	sess := p.sessions.Get(ctx)
	if sess == nil {
		if p.sessions.Blocked() {
			return nil, fmt.Errorf("yahoo: %w: %w", market.ErrUnavailable, session.ErrBlocked)
		}
		return nil, fmt.Errorf("yahoo: %w: no session", market.ErrUnavailable)
	}

	history, err := p.fetchChart(ctx, sess, symbol)
	if err != nil {
		return nil, p.classify(ctx, symbol, err)
	}

	snap, err := p.fetchQuote(ctx, sess, symbol)
	if err != nil {
		if cerr := p.classify(ctx, symbol, err); errors.Is(cerr, market.ErrUnavailable) {
			return nil, cerr
		}
		logx.WithContext(ctx).Infof("yahoo: quote %s failed, using chart only: %v", symbol, err)
	}

	obs := merge(history, snap)
	if obs == nil {
		return nil, fmt.Errorf("yahoo: %s: %w", symbol, market.ErrSymbolNotFound)
	}
	obs.History = market.TrimHistory(obs.History, p.historyDays)
	return obs, nil
}

// classify maps HTTP failures onto provider errors. A 401 trips the session block.
func (p *Provider) classify(ctx context.Context, symbol string, err error) error {
	switch httpx.StatusOf(err) {
	case http.StatusUnauthorized:
		p.sessions.ReportUnauthorized(ctx)
		return fmt.Errorf("yahoo: %w: %w", market.ErrUnavailable, session.ErrBlocked)
	case http.StatusForbidden:
		// A stale crumb answers 403; the next call performs a fresh handshake.
		p.sessions.Invalidate()
		return fmt.Errorf("yahoo: %s: %w", symbol, err)
	case http.StatusNotFound:
		return fmt.Errorf("yahoo: %s: %w", symbol, market.ErrSymbolNotFound)
	}
	return fmt.Errorf("yahoo: %s: %w", symbol, err)
}

func (p *Provider) fetchChart(ctx context.Context, sess *session.Session, symbol string) ([]market.Point, error) {
	q := url.Values{}
	q.Set("range", p.historyRange)
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	q.Set("crumb", sess.Crumb)
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())

	var payload chartResponse
	if err := p.client.GetJSON(ctx, endpoint, &payload, sess.RequestOptions()...); err != nil {
		return nil, err
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", market.ErrSymbolNotFound, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, market.ErrSymbolNotFound
	}
	return chartPoints(&payload.Chart.Result[0]), nil
}

func (p *Provider) fetchQuote(ctx context.Context, sess *session.Session, symbol string) (*snapshot, error) {
	q := url.Values{}
	q.Set("symbols", symbol)
	q.Set("crumb", sess.Crumb)
	endpoint := fmt.Sprintf("%s/v7/finance/quote?%s", p.baseURL, q.Encode())

	var payload quoteResponse
	if err := p.client.GetJSON(ctx, endpoint, &payload, sess.RequestOptions()...); err != nil {
		return nil, err
	}
	for i := range payload.QuoteResponse.Result {
		res := &payload.QuoteResponse.Result[i]
		if strings.EqualFold(res.Symbol, symbol) {
			return quoteSnapshot(res), nil
		}
	}
	return nil, market.ErrSymbolNotFound
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
