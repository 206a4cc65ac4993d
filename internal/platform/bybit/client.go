// Package bybit adapts Bybit's v5 public market data API to the venue
// adapter surface. The funding history endpoint is not wired; the adapter
// declares the capability gap instead.
package bybit

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

const defaultBaseURL = "https://api.bybit.com"

// Config holds the REST client parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Limiter domain.RateLimiter
}

// Client is the REST client for Bybit public market data.
type Client struct {
	baseURL    string
	limiter    domain.RateLimiter
	httpClient *http.Client
}

// NewClient creates a Bybit market data client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
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
// symbol's linear perpetual.
func (c *Client) GetFundingRate(ctx context.Context, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	t, fetchedAt, err := c.getTicker(ctx, "linear", nativeSymbol(symbol))
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("bybit: get funding rate %s: %w", symbol, err)
	}

	rate, err := strconv.ParseFloat(t.FundingRate, 64)
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("bybit: parse funding rate %q: %w", t.FundingRate, err)
	}
	mark, err := strconv.ParseFloat(t.MarkPrice, 64)
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("bybit: parse mark price %q: %w", t.MarkPrice, err)
	}

	var next time.Time
	if ms, err := strconv.ParseInt(t.NextFundingTime, 10, 64); err == nil && ms > 0 {
		next = time.UnixMilli(ms).UTC()
	}

	return domain.FundingRateQuote{
		Rate:            rate,
		MarkPrice:       mark,
		NextFundingTime: next,
		Period:          domain.DefaultFundingPeriod,
		Timestamp:       fetchedAt,
	}, nil
}

// GetSpotPrice returns the spot last price for the symbol.
func (c *Client) GetSpotPrice(ctx context.Context, symbol domain.Symbol) (domain.PriceQuote, error) {
	t, fetchedAt, err := c.getTicker(ctx, "spot", nativeSymbol(symbol))
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("bybit: get spot price %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("bybit: parse spot price %q: %w", t.LastPrice, err)
	}
	return domain.PriceQuote{Price: price, Timestamp: fetchedAt}, nil
}

// GetFuturesPrice returns the last price of a perpetual or dated linear
// contract.
func (c *Client) GetFuturesPrice(ctx context.Context, contract domain.FuturesContract) (domain.PriceQuote, error) {
	ticker := contractTicker(contract)
	t, fetchedAt, err := c.getTicker(ctx, "linear", ticker)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("bybit: get futures price %s: %w", ticker, err)
	}
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("bybit: parse futures price %q: %w", t.LastPrice, err)
	}
	return domain.PriceQuote{Price: price, Timestamp: fetchedAt}, nil
}

// ListFuturesContracts returns the tradable linear contracts whose ticker
// starts with the symbol: the perpetual first, then dated contracts by
// ascending expiry.
func (c *Client) ListFuturesContracts(ctx context.Context, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("limit", "1000")

	body, err := c.doRequest(ctx, "/v5/market/instruments-info", params)
	if err != nil {
		return nil, fmt.Errorf("bybit: list contracts %s: %w", symbol, err)
	}

	var result instrumentsResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("bybit: decode instruments: %w", err)
	}

	var contracts []domain.FuturesContract
	for _, inst := range result.List {
		if inst.Status != "Trading" || !strings.HasPrefix(inst.Symbol, nativeSymbol(symbol)) {
			continue
		}
		switch inst.ContractType {
		case "LinearPerpetual":
			if inst.Symbol != nativeSymbol(symbol) {
				continue
			}
			period := domain.DefaultFundingPeriod
			if inst.FundingInterval > 0 {
				period = time.Duration(inst.FundingInterval) * time.Minute
			}
			contracts = append(contracts, domain.FuturesContract{
				Symbol:        symbol,
				Type:          domain.ContractPerpetual,
				ContractSize:  1,
				FundingPeriod: period,
			})
		case "LinearFutures":
			ms, err := strconv.ParseInt(inst.DeliveryTime, 10, 64)
			if err != nil || ms <= 0 {
				continue
			}
			contracts = append(contracts, domain.FuturesContract{
				Symbol:       symbol,
				Type:         domain.ContractDated,
				Expiry:       time.UnixMilli(ms).UTC(),
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

// GetFundingRateHistory is not provided by this adapter.
func (c *Client) GetFundingRateHistory(ctx context.Context, symbol domain.Symbol, window time.Duration) ([]domain.FundingRateSnapshot, error) {
	return nil, fmt.Errorf("bybit: funding rate history for %s: %w", symbol, domain.ErrUnsupported)
}

// contractTicker renders the venue-native ticker: the plain symbol for the
// perpetual, symbol-DDMMMYY for dated contracts.
func contractTicker(contract domain.FuturesContract) string {
	if contract.Type == domain.ContractDated {
		return nativeSymbol(contract.Symbol) + "-" + strings.ToUpper(contract.Expiry.UTC().Format("02Jan06"))
	}
	return nativeSymbol(contract.Symbol)
}

// getTicker fetches one ticker from /v5/market/tickers for the given
// category.
func (c *Client) getTicker(ctx context.Context, category, symbol string) (ticker, time.Time, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, "/v5/market/tickers", params)
	if err != nil {
		return ticker{}, time.Time{}, err
	}

	var result tickersResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ticker{}, time.Time{}, fmt.Errorf("decode tickers: %w", err)
	}
	if len(result.List) == 0 {
		return ticker{}, time.Time{}, domain.ErrDataUnavailable
	}
	return result.List[0], time.Now().UTC(), nil
}

// doRequest performs a GET, honoring the rate limiter, unwraps the v5
// envelope, and returns the result payload.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "bybit"); err != nil {
			return nil, err
		}
	}

	fullURL := c.baseURL + path
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
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrDataUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return nil, fmt.Errorf("%w: api error %d: %s", domain.ErrDataUnavailable, envelope.RetCode, envelope.RetMsg)
	}

	return envelope.Result, nil
}
