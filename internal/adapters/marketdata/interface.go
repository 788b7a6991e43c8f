package marketdata

import (
	"context"
	"net/http"

	"github.com/warofcoins/marketguard/internal/domain"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Provider interface {
	// Raises domain.ErrTokenNotFound if the upstream does not know the token
	//
	// Raises domain.ErrTemporarilyUnavailable if the provider implementation receives an error believed to be intermittent. The call may be retried later.
	GetTokenOverview(ctx context.Context, chain string, mint string) (domain.TokenOverview, error)
}
