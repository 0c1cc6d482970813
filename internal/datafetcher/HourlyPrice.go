/*
This file fetches hourly price history from the coins API chart endpoint.

Volatility is measured over the last 30 days. A series shorter than a week is rejected,
and the scorer falls back to the exposure table for that pool.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
)

var priceLogger = logger.GetForComponent("price_retriever")

var ErrInsufficientPriceHistory = errors.New("insufficient price data for volatility calculation")

const (
	PRICE_CHART_ROUTE   = "/chart/"
	PRICE_HISTORY_HOURS = 720 // 30 days of hourly data
	MIN_PRICE_POINTS    = 168 // one week
	MIN_PRICE_GAP       = 30 * time.Minute
	MAX_PRICE_GAP       = 90 * time.Minute
)

type priceChartResponse struct {
	Coins map[string]struct {
		Symbol     string  `json:"symbol"`
		Confidence float64 `json:"confidence"`
		Prices     []struct {
			Timestamp int64   `json:"timestamp"`
			Price     float64 `json:"price"`
		} `json:"prices"`
	} `json:"coins"`
}

// PriceRetriever pulls hourly price histories by feed ID.
type PriceRetriever struct {
	client  *apiClient
	baseURL string
	cache   *Cache
}

func NewPriceRetriever(baseURL string, httpClient *http.Client, retryDelay time.Duration, cache *Cache) *PriceRetriever {
	return &PriceRetriever{
		client:  newAPIClient(httpClient, retryDelay, priceLogger),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
	}
}

// FetchHourlyPrices returns the validated, chronologically ordered hourly closes of a price feed.
func (r *PriceRetriever) FetchHourlyPrices(ctx context.Context, feedID string) ([]types.PriceData, error) {
	if strings.TrimSpace(feedID) == "" {
		return nil, errors.New("price feed ID cannot be empty")
	}
	if cached, ok := r.cache.Prices(feedID); ok {
		return cached, nil
	}

	query := url.Values{}
	query.Set("span", fmt.Sprint(PRICE_HISTORY_HOURS))
	query.Set("period", "1h")
	endpoint := r.baseURL + PRICE_CHART_ROUTE + url.PathEscape(feedID) + "?" + query.Encode()

	var resp priceChartResponse
	if err := r.client.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("price fetch failed for %s: %w", feedID, err)
	}
	coin, ok := resp.Coins[feedID]
	if !ok {
		return nil, fmt.Errorf("%w: no price series for %s", ErrAPIResponseInvalid, feedID)
	}

	prices := make([]types.PriceData, 0, len(coin.Prices))
	for i, p := range coin.Prices {
		if p.Timestamp <= 0 {
			return nil, fmt.Errorf("%w: price point %d for %s has invalid timestamp %d", ErrAPIResponseInvalid, i, feedID, p.Timestamp)
		}
		if !utils.IsFinite(p.Price) || p.Price <= 0 {
			priceLogger.Warn().
				Str("feed", feedID).
				Int("index", i).
				Float64("price", p.Price).
				Msg("Skipping invalid price point")
			continue
		}
		prices = append(prices, types.PriceData{Timestamp: time.Unix(p.Timestamp, 0).UTC(), Price: p.Price})
	}

	if len(prices) < MIN_PRICE_POINTS {
		priceLogger.Warn().
			Str("feed", feedID).
			Int("received", len(prices)).
			Int("required", MIN_PRICE_POINTS).
			Msg("Insufficient price points received")
		return nil, fmt.Errorf("%w: %d valid points for %s, need %d", ErrInsufficientPriceHistory, len(prices), feedID, MIN_PRICE_POINTS)
	}
	if err := validatePriceSequence(prices, feedID); err != nil {
		return nil, err
	}

	// Keep exactly the most recent window
	if len(prices) > PRICE_HISTORY_HOURS {
		prices = prices[len(prices)-PRICE_HISTORY_HOURS:]
	}

	priceLogger.Debug().
		Str("feed", feedID).
		Str("symbol", coin.Symbol).
		Int("dataPoints", len(prices)).
		Time("oldestData", prices[0].Timestamp).
		Time("newestData", prices[len(prices)-1].Timestamp).
		Msg("Price history retrieved")

	r.cache.SetPrices(feedID, prices)
	return prices, nil
}

// validatePriceSequence ensures the price data has proper chronological sequence
func validatePriceSequence(prices []types.PriceData, feedID string) error {
	for i := 1; i < len(prices); i++ {
		if !prices[i].Timestamp.After(prices[i-1].Timestamp) {
			return fmt.Errorf("%w: price points not in chronological order for %s at index %d", ErrAPIResponseInvalid, feedID, i)
		}

		// Note: This is a warning, not an error, as some gaps might be acceptable
		if gap := prices[i].Timestamp.Sub(prices[i-1].Timestamp); gap < MIN_PRICE_GAP || gap > MAX_PRICE_GAP {
			priceLogger.Warn().
				Str("feed", feedID).
				Int("index", i).
				Dur("timeDiff", gap).
				Msg("Unusual time gap between price points")
		}
	}
	return nil
}
