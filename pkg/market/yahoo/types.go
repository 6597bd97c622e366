package yahoo

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                string   `json:"symbol"`
	Currency              string   `json:"currency"`
	MarketCap             *float64 `json:"marketCap"`
	RegularMarketPrice    *float64 `json:"regularMarketPrice"`
	RegularMarketTime     int64    `json:"regularMarketTime"`
	GMTOffSetMilliseconds int64    `json:"gmtOffSetMilliseconds"`
}

// snapshot is the normalized quote payload.
type snapshot struct {
	Close     float64
	Date      string
	MarketCap *float64
	Currency  string
}
