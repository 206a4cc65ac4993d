// Package binance adapts Binance's public spot and USDT-margined futures
// market data APIs to the venue adapter surface.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

const (
	defaultFuturesURL = "https://fapi.binance.com"
	defaultSpotURL    = "https://api.binance.com"

	// historyPageLimit is the per-request cap of /fapi/v1/fundingRate.
	historyPageLimit = 1000
)

// Config holds the REST client parameters. Empty URLs fall back to the
// production hosts.
type Config struct {
	FuturesURL string
	SpotURL    string
	Timeout    time.Duration
	// Limiter, when set, throttles outbound requests under the venue's
	// request-weight limits.
	Limiter domain.RateLimiter
}

// Client is the REST client for Binance public market data.
type Client struct {
	futuresURL string
	spotURL    string
	limiter    domain.RateLimiter
	httpClient *http.Client
}

// NewClient creates a Binance market data client.
func NewClient(cfg Config) *Client {
	futuresURL := cfg.FuturesURL
	if futuresURL == "" {
		futuresURL = defaultFuturesURL
	}
	spotURL := cfg.SpotURL
	if spotURL == "" {
		spotURL = defaultSpotURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		futuresURL: futuresURL,
		spotURL:    spotURL,
		limiter:    cfg.Limiter,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// nativeSymbol renders the venue ticker for a canonical symbol:
// "BTC-USDT" becomes "BTCUSDT".
func nativeSymbol(symbol domain.Symbol) string {
	return strings.ReplaceAll(string(symbol), "-", "")
}

// GetFundingRate returns the current funding rate and mark price for the
// symbol's perpetual contract.
func (c *Client) GetFundingRate(ctx context.Context, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(symbol))

	body, err := c.doRequest(ctx, c.futuresURL, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("binance: get funding rate %s: %w", symbol, err)
	}

	var idx premiumIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("binance: decode premium index: %w", err)
	}

	rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("binance: parse funding rate %q: %w", idx.LastFundingRate, err)
	}
	mark, err := strconv.ParseFloat(idx.MarkPrice, 64)
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("binance: parse mark price %q: %w", idx.MarkPrice, err)
	}

	return domain.FundingRateQuote{
		Rate:            rate,
		MarkPrice:       mark,
		NextFundingTime: time.UnixMilli(idx.NextFundingTime).UTC(),
		Period:          domain.DefaultFundingPeriod,
		Timestamp:       time.UnixMilli(idx.Time).UTC(),
	}, nil
}

// GetSpotPrice returns the spot last price for the symbol.
func (c *Client) GetSpotPrice(ctx context.Context, symbol domain.Symbol) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(symbol))

	body, err := c.doRequest(ctx, c.spotURL, "/api/v3/ticker/price", params)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: get spot price %s: %w", symbol, err)
	}

	var ticker tickerPrice
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: decode spot ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: parse spot price %q: %w", ticker.Price, err)
	}

	return domain.PriceQuote{Price: price, Timestamp: time.Now().UTC()}, nil
}

// GetFuturesPrice returns the last price of a perpetual or dated contract.
func (c *Client) GetFuturesPrice(ctx context.Context, contract domain.FuturesContract) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("symbol", contractTicker(contract))

	body, err := c.doRequest(ctx, c.futuresURL, "/fapi/v1/ticker/price", params)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: get futures price %s: %w", contractTicker(contract), err)
	}

	var ticker tickerPrice
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: decode futures ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: parse futures price %q: %w", ticker.Price, err)
	}

	ts := time.UnixMilli(ticker.Time).UTC()
	if ticker.Time == 0 {
		ts = time.Now().UTC()
	}
	return domain.PriceQuote{Price: price, Timestamp: ts}, nil
}

// ListFuturesContracts returns the tradable contracts for the symbol's
// pair: the perpetual first, then dated contracts by ascending expiry.
func (c *Client) ListFuturesContracts(ctx context.Context, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	body, err := c.doRequest(ctx, c.futuresURL, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: list contracts %s: %w", symbol, err)
	}

	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	var contracts []domain.FuturesContract
	for _, ci := range info.Symbols {
		if ci.Pair != nativeSymbol(symbol) || ci.Status != "TRADING" {
			continue
		}
		switch ci.ContractType {
		case "PERPETUAL":
			contracts = append(contracts, domain.FuturesContract{
				Symbol:        symbol,
				Type:          domain.ContractPerpetual,
				ContractSize:  1,
				FundingPeriod: domain.DefaultFundingPeriod,
			})
		case "CURRENT_QUARTER", "NEXT_QUARTER":
			if ci.DeliveryDate <= 0 {
				continue
			}
			contracts = append(contracts, domain.FuturesContract{
				Symbol:       symbol,
				Type:         domain.ContractDated,
				Expiry:       time.UnixMilli(ci.DeliveryDate).UTC(),
				ContractSize: 1,
			})
		}
	}

	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].Type != contracts[j].Type {
			return contracts[i].Type == domain.ContractPerpetual
		}
		return contracts[i].Expiry.Before(contracts[j].Expiry)
	})
	return contracts, nil
}

// GetFundingRateHistory returns funding rate settlements over the trailing
// window, oldest first.
func (c *Client) GetFundingRateHistory(ctx context.Context, symbol domain.Symbol, window time.Duration) ([]domain.FundingRateSnapshot, error) {
	start := time.Now().Add(-window)

	params := url.Values{}
	params.Set("symbol", nativeSymbol(symbol))
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(historyPageLimit))

	body, err := c.doRequest(ctx, c.futuresURL, "/fapi/v1/fundingRate", params)
	if err != nil {
		return nil, fmt.Errorf("binance: get funding history %s: %w", symbol, err)
	}

	var entries []fundingRateEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("binance: decode funding history: %w", err)
	}

	snaps := make([]domain.FundingRateSnapshot, 0, len(entries))
	for _, e := range entries {
		rate, err := strconv.ParseFloat(e.FundingRate, 64)
		if err != nil {
			continue
		}
		var mark float64
		if e.MarkPrice != "" {
			mark, _ = strconv.ParseFloat(e.MarkPrice, 64)
		}
		snaps = append(snaps, domain.FundingRateSnapshot{
			Symbol:    symbol,
			Rate:      rate,
			MarkPrice: mark,
			Period:    domain.DefaultFundingPeriod,
			Timestamp: time.UnixMilli(e.FundingTime).UTC(),
		})
	}
	return snaps, nil
}

// contractTicker renders the venue-native ticker: the plain pair for the
// perpetual, pair_YYMMDD for dated contracts.
func contractTicker(contract domain.FuturesContract) string {
	if contract.Type == domain.ContractDated {
		return nativeSymbol(contract.Symbol) + "_" + contract.Expiry.UTC().Format("060102")
	}
	return nativeSymbol(contract.Symbol)
}

// doRequest performs a GET against the given host, honoring the rate
// limiter, and returns the response body.
func (c *Client) doRequest(ctx context.Context, host, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "binance"); err != nil {
			return nil, err
		}
	}

	fullURL := host + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrDataUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("%w: status %d: %s (code %d)", domain.ErrDataUnavailable, resp.StatusCode, apiErr.Msg, apiErr.Code)
		}
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrDataUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}
