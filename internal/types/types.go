package types

type TickerRequest struct {
	Ticker string `path:"ticker"`
}

type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type PriceResponse struct {
	Ticker    string       `json:"ticker"`
	State     string       `json:"state"`
	Close     float64      `json:"close,omitempty"`
	Date      string       `json:"date,omitempty"`
	Source    string       `json:"source,omitempty"`
	MarketCap *float64     `json:"marketCap,omitempty"`
	Currency  string       `json:"currency,omitempty"`
	UpdatedAt string       `json:"updatedAt,omitempty"`
	Series    []PricePoint `json:"series"`
}

type JobResponse struct {
	Ticker    string `json:"ticker"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type SessionState struct {
	Provider     string `json:"provider"`
	HasSession   bool   `json:"hasSession"`
	Blocked      bool   `json:"blocked"`
	BlockedUntil string `json:"blockedUntil,omitempty"`
}

type HealthResponse struct {
	Status     string         `json:"status"`
	Store      string         `json:"store"`
	Sources    []string       `json:"sources"`
	QueueDepth int            `json:"queueDepth"`
	Jobs       map[string]int `json:"jobs"`
	Sessions   []SessionState `json:"sessions"`
}
