package binance

import "encoding/json"

// premiumIndex is the response of GET /fapi/v1/premiumIndex.
type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

// fundingRateEntry is one element of GET /fapi/v1/fundingRate.
type fundingRateEntry struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
	MarkPrice   string `json:"markPrice"`
}

// tickerPrice is the response of the spot and futures ticker endpoints.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"`
}

// exchangeInfo is the response of GET /fapi/v1/exchangeInfo, reduced to
// the fields the adapter reads.
type exchangeInfo struct {
	Symbols []contractInfo `json:"symbols"`
}

// contractInfo describes one listed contract.
type contractInfo struct {
	Symbol       string `json:"symbol"`
	Pair         string `json:"pair"`
	ContractType string `json:"contractType"` // PERPETUAL, CURRENT_QUARTER, NEXT_QUARTER
	DeliveryDate int64  `json:"deliveryDate"`
	Status       string `json:"status"`
}

// apiError is the error body the API returns alongside non-2xx statuses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wsMarkPrice is the markPrice stream payload.
type wsMarkPrice struct {
	EventType       string `json:"e"` // "markPriceUpdate"
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	FundingRate     string `json:"r"`
	NextFundingTime int64  `json:"T"`
}

// wsCombinedEnvelope wraps combined-stream messages.
type wsCombinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}
