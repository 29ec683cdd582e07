package polygon

// API response envelopes for the REST endpoints the client touches. Only the
// fields the tracker and selector consume are mapped.

type lastTradeResponse struct {
	Status  string `json:"status"`
	Results struct {
		Price float64 `json:"p"`
	} `json:"results"`
}

type quotesResponse struct {
	Status  string `json:"status"`
	Results []struct {
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"results"`
}

type prevCloseResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Close float64 `json:"c"`
	} `json:"results"`
}

type optionSnapshot struct {
	Details struct {
		Ticker         string  `json:"ticker"`
		StrikePrice    float64 `json:"strike_price"`
		ExpirationDate string  `json:"expiration_date"`
		ContractType   string  `json:"contract_type"`
	} `json:"details"`
	Greeks struct {
		Delta float64 `json:"delta"`
	} `json:"greeks"`
	OpenInterest float64 `json:"open_interest"`
	LastQuote    struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	} `json:"last_quote"`
	Day struct {
		Close float64 `json:"close"`
	} `json:"day"`
}

type snapshotResponse struct {
	Status  string         `json:"status"`
	Results optionSnapshot `json:"results"`
}

type chainResponse struct {
	Status  string           `json:"status"`
	Results []optionSnapshot `json:"results"`
	NextURL string           `json:"next_url"`
}
