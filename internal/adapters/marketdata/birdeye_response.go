package marketdata

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/warofcoins/marketguard/internal/domain"
)

type birdeyeResponse struct {
	Success *bool          `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// The field names vary between endpoints and plans
var (
	marketCapFields = []string{"market_cap", "marketCap", "mc", "liquidity_market_cap"}
	priceFields     = []string{"price", "last_price", "lastPrice"}
)

func tokenOverviewFromBirdeyeResponse(statusCode int, data []byte, chain string, mint string, queriedAt time.Time) (domain.TokenOverview, error) {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.TokenOverview{}, fmt.Errorf("birdeye returned status code %d: %w", statusCode, domain.ErrInvalidAPIKey)
	case statusCode == http.StatusNotFound:
		return domain.TokenOverview{}, fmt.Errorf("birdeye returned status code %d: %w", statusCode, domain.ErrTokenNotFound)
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return domain.TokenOverview{}, fmt.Errorf("%w: birdeye returned status code %d", domain.ErrTemporarilyUnavailable, statusCode)
	case statusCode < 200 || statusCode > 299:
		return domain.TokenOverview{}, fmt.Errorf("birdeye returned status code %d", statusCode)
	}

	var response birdeyeResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return domain.TokenOverview{}, fmt.Errorf("invalid JSON from birdeye: %w", err)
	}

	if response.Success != nil && !*response.Success {
		return domain.TokenOverview{}, fmt.Errorf("birdeye reported failure: %q", response.Message)
	}

	overview := domain.TokenOverview{
		Mint:      mint,
		Chain:     chain,
		QueriedAt: queriedAt,
	}

	// Missing or unparseable market caps are reported as 0
	if marketCap, ok := firstNumber(response.Data, marketCapFields); ok {
		overview.MarketCap = marketCap
	}

	if price, ok := firstNumber(response.Data, priceFields); ok {
		overview.Price = &price
	}

	return overview, nil
}

// firstNumber looks at the first of keys that is present and not null.
// Later keys are not consulted even if that value is not a number.
func firstNumber(data map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok || raw == nil {
			continue
		}

		var value float64
		switch v := raw.(type) {
		case float64:
			value = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return 0, false
			}
			value = parsed
		default:
			return 0, false
		}

		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, false
		}
		return value, true
	}
	return 0, false
}
