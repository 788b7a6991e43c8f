package app

import (
	"context"
	"fmt"
	"time"

	"github.com/warofcoins/marketguard/internal/adapters/cache"
	"github.com/warofcoins/marketguard/internal/domain"
	"github.com/warofcoins/marketguard/internal/reporting"
	"github.com/warofcoins/marketguard/internal/strutils"
)

// Served fresh for 15s, then stale while revalidating for another 45s
var TokenOverviewCacheOptions = cache.Options{
	TTL:     15 * time.Second,
	Stale:   45 * time.Second,
	LockTTL: 15 * time.Second,
}

const getTokenOverviewTimeout = 10 * time.Second

type GetTokenOverview func(ctx context.Context, chain string, mint string) (cache.Result[domain.TokenOverview], error)

type tokenOverviewProvider interface {
	GetTokenOverview(ctx context.Context, chain string, mint string) (domain.TokenOverview, error)
}

func TokenOverviewCacheKey(chain string, mint string) string {
	return fmt.Sprintf("marketdata:token_overview:v1:chain=%s:mint=%s", chain, mint)
}

func buildGetTokenOverviewWithoutCache(
	provider tokenOverviewProvider,
) func(ctx context.Context, chain string, mint string) (domain.TokenOverview, error) {
	return func(ctx context.Context, chain string, mint string) (domain.TokenOverview, error) {
		ctx, cancel := context.WithTimeout(ctx, getTokenOverviewTimeout)
		defer cancel()

		overview, err := provider.GetTokenOverview(ctx, chain, mint)
		if err != nil {
			// NOTE: tokenOverviewProvider implementations handle their own error reporting
			return domain.TokenOverview{}, fmt.Errorf("could not get token overview: %w", err)
		}

		return overview, nil
	}
}

func BuildGetTokenOverviewWithCache(
	coordinator *cache.Coordinator[domain.TokenOverview],
	provider tokenOverviewProvider,
) GetTokenOverview {
	getTokenOverviewWithoutCache := buildGetTokenOverviewWithoutCache(provider)

	return func(ctx context.Context, chain string, mint string) (cache.Result[domain.TokenOverview], error) {
		if !strutils.MintIsNormalized(mint) {
			err := fmt.Errorf("mint is not normalized")
			reporting.Report(ctx, err, map[string]string{"mint": mint})
			return cache.Result[domain.TokenOverview]{}, err
		}

		key := TokenOverviewCacheKey(chain, mint)

		result, err := coordinator.GetOrFetch(ctx, key, func(ctx context.Context) (domain.TokenOverview, error) {
			return getTokenOverviewWithoutCache(ctx, chain, mint)
		}, TokenOverviewCacheOptions)
		if err != nil {
			// NOTE: getTokenOverviewWithoutCache handles its own error reporting
			return cache.Result[domain.TokenOverview]{}, fmt.Errorf("failed to get token overview through cache: %w", err)
		}

		return result, nil
	}
}

// BuildRefreshTokenOverview drops the cached overview and fetches a new one
func BuildRefreshTokenOverview(
	coordinator *cache.Coordinator[domain.TokenOverview],
	getTokenOverview GetTokenOverview,
) GetTokenOverview {
	return func(ctx context.Context, chain string, mint string) (cache.Result[domain.TokenOverview], error) {
		if !strutils.MintIsNormalized(mint) {
			err := fmt.Errorf("mint is not normalized")
			reporting.Report(ctx, err, map[string]string{"mint": mint})
			return cache.Result[domain.TokenOverview]{}, err
		}

		err := coordinator.Purge(ctx, TokenOverviewCacheKey(chain, mint))
		if err != nil {
			// Still try to get a value, it may just be served from the cache
			reporting.Report(ctx, fmt.Errorf("failed to purge token overview: %w", err))
		}

		return getTokenOverview(ctx, chain, mint)
	}
}
