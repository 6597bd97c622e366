package market

import "eodprices/pkg/httpx"

// ClientOptions translates the provider's HTTP settings into httpx options.
func (p *ProviderConfig) ClientOptions() []httpx.Option {
	var opts []httpx.Option
	if p.Timeout > 0 {
		opts = append(opts, httpx.WithTimeout(p.Timeout))
	}
	if p.MinInterval > 0 {
		opts = append(opts, httpx.WithMinInterval(p.MinInterval))
	}
	if p.MaxRetries > 0 {
		opts = append(opts, httpx.WithMaxAttempts(p.MaxRetries+1))
	}
	return opts
}
