package domain

import "time"

// TokenOverview is a point-in-time market snapshot of a token
type TokenOverview struct {
	Mint      string
	Chain     string
	MarketCap float64
	// Price is nil when the upstream did not report one
	Price     *float64
	QueriedAt time.Time
}
