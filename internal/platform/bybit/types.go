package bybit

import "encoding/json"

// apiResponse is the v5 envelope around every endpoint.
type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// tickersResult is the result of GET /v5/market/tickers.
type tickersResult struct {
	Category string   `json:"category"`
	List     []ticker `json:"list"`
}

// ticker holds the fields the adapter reads; spot tickers leave the
// funding fields empty.
type ticker struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	MarkPrice       string `json:"markPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

// instrumentsResult is the result of GET /v5/market/instruments-info.
type instrumentsResult struct {
	Category string       `json:"category"`
	List     []instrument `json:"list"`
}

// instrument describes one listed contract.
type instrument struct {
	Symbol          string `json:"symbol"`
	ContractType    string `json:"contractType"` // LinearPerpetual, LinearFutures
	Status          string `json:"status"`
	BaseCoin        string `json:"baseCoin"`
	QuoteCoin       string `json:"quoteCoin"`
	DeliveryTime    string `json:"deliveryTime"`    // ms since epoch; "0" for perpetuals
	FundingInterval int    `json:"fundingInterval"` // minutes
}
