package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warofcoins/marketguard/internal/domain"
)

const testMint = "So11111111111111111111111111111111111111112"

func ptr[T any](v T) *T {
	return &v
}

func TestTokenOverviewFromBirdeyeResponse(t *testing.T) {
	t.Parallel()

	queriedAt := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		statusCode int
		body       string
		expected   domain.TokenOverview
		errIs      error
		errString  string
	}{
		{
			name:       "market_cap and price",
			statusCode: 200,
			body:       `{"success":true,"data":{"market_cap":1234.5,"price":0.25}}`,
			expected:   domain.TokenOverview{MarketCap: 1234.5, Price: ptr(0.25)},
		},
		{
			name:       "camel case fields",
			statusCode: 200,
			body:       `{"success":true,"data":{"marketCap":99,"lastPrice":1.5}}`,
			expected:   domain.TokenOverview{MarketCap: 99, Price: ptr(1.5)},
		},
		{
			name:       "mc and last_price",
			statusCode: 200,
			body:       `{"data":{"mc":7,"last_price":"2.5"}}`,
			expected:   domain.TokenOverview{MarketCap: 7, Price: ptr(2.5)},
		},
		{
			name:       "liquidity market cap as string",
			statusCode: 200,
			body:       `{"data":{"liquidity_market_cap":" 1e6 "}}`,
			expected:   domain.TokenOverview{MarketCap: 1e6},
		},
		{
			name:       "null fields are skipped",
			statusCode: 200,
			body:       `{"data":{"market_cap":null,"marketCap":42,"price":null,"lastPrice":3}}`,
			expected:   domain.TokenOverview{MarketCap: 42, Price: ptr(3.0)},
		},
		{
			name:       "first present field wins even if unusable",
			statusCode: 200,
			body:       `{"data":{"market_cap":"lots","mc":5,"price":true,"last_price":1}}`,
			expected:   domain.TokenOverview{MarketCap: 0},
		},
		{
			name:       "missing data",
			statusCode: 200,
			body:       `{"success":true}`,
			expected:   domain.TokenOverview{MarketCap: 0},
		},
		{
			name:       "zero price is kept",
			statusCode: 200,
			body:       `{"data":{"price":0}}`,
			expected:   domain.TokenOverview{Price: ptr(0.0)},
		},
		{
			name:       "unsuccessful",
			statusCode: 200,
			body:       `{"success":false,"message":"address is invalid"}`,
			errString:  "birdeye reported failure",
		},
		{
			name:       "invalid json",
			statusCode: 200,
			body:       `<html>oops</html>`,
			errString:  "invalid JSON from birdeye",
		},
		{
			name:       "unauthorized",
			statusCode: 401,
			body:       `{"success":false,"message":"Unauthorized"}`,
			errIs:      domain.ErrInvalidAPIKey,
		},
		{
			name:       "forbidden",
			statusCode: 403,
			body:       `{}`,
			errIs:      domain.ErrInvalidAPIKey,
		},
		{
			name:       "not found",
			statusCode: 404,
			body:       `{}`,
			errIs:      domain.ErrTokenNotFound,
		},
		{
			name:       "rate limited",
			statusCode: 429,
			body:       `{"success":false,"message":"Too many requests"}`,
			errIs:      domain.ErrTemporarilyUnavailable,
		},
		{
			name:       "server error with html body",
			statusCode: 502,
			body:       `<html>bad gateway</html>`,
			errIs:      domain.ErrTemporarilyUnavailable,
		},
		{
			name:       "other client error",
			statusCode: 400,
			body:       `{}`,
			errString:  "birdeye returned status code 400",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			overview, err := tokenOverviewFromBirdeyeResponse(c.statusCode, []byte(c.body), "solana", testMint, queriedAt)
			if c.errIs != nil {
				require.ErrorIs(t, err, c.errIs)
				return
			}
			if c.errString != "" {
				require.ErrorContains(t, err, c.errString)
				return
			}
			require.NoError(t, err)

			expected := c.expected
			expected.Mint = testMint
			expected.Chain = "solana"
			expected.QueriedAt = queriedAt
			require.Equal(t, expected, overview)
		})
	}
}
