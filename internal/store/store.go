// Package store persists normalized market-data records keyed the way the
// cache orchestrator looks them up. There are no cross-key transactions:
// every record is written atomically as one self-contained unit.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"stockview/internal/provider"
)

// CachedQuote is a quote merged with its company overview plus the
// provenance the orchestrator uses for freshness decisions.
type CachedQuote struct {
	provider.Quote
	Overview  provider.Overview `json:"company_overview"`
	FetchedAt time.Time         `json:"fetched_at"`
	Provider  string            `json:"provider"`
}

// CachedSeries is a normalized historical series, bars chronologically
// ascending, plus provenance.
type CachedSeries struct {
	provider.Series
	AsOfDate  string    `json:"as_of_date"`
	FetchedAt time.Time `json:"fetched_at"`
	Provider  string    `json:"provider"`
}

// CachedIndicator is a normalized indicator series plus provenance.
type CachedIndicator struct {
	provider.IndicatorSeries
	AsOfDate  string    `json:"as_of_date"`
	FetchedAt time.Time `json:"fetched_at"`
	Provider  string    `json:"provider"`
}

// SeriesKey uniquely identifies a stored historical series.
type SeriesKey struct {
	Symbol   string
	Interval string
	Range    string
	Adjusted bool
}

// IndicatorKey uniquely identifies a stored indicator series. Params is
// the canonical serialization so equivalent parameter sets collide.
type IndicatorKey struct {
	Symbol    string
	Indicator string
	Interval  string
	Params    string
}

// NewIndicatorKey builds an IndicatorKey with canonicalized params.
func NewIndicatorKey(symbol, indicator, interval string, params map[string]string) IndicatorKey {
	return IndicatorKey{
		Symbol:    symbol,
		Indicator: indicator,
		Interval:  interval,
		Params:    CanonicalParams(params),
	}
}

// CanonicalParams serializes a parameter mapping order-independently:
// sorted key=value pairs joined with "&".
func CanonicalParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// Store is keyed get/put persistence for the three record kinds plus the
// configuration key/value table. Get methods return (nil, nil) when the
// key is absent.
type Store interface {
	GetQuote(ctx context.Context, symbol string) (*CachedQuote, error)
	PutQuote(ctx context.Context, rec *CachedQuote) error

	GetSeries(ctx context.Context, key SeriesKey) (*CachedSeries, error)
	PutSeries(ctx context.Context, rec *CachedSeries) error

	GetIndicator(ctx context.Context, key IndicatorKey) (*CachedIndicator, error)
	PutIndicator(ctx context.Context, rec *CachedIndicator) error

	DeleteQuotes(ctx context.Context) error
	DeleteSeries(ctx context.Context) error
	DeleteIndicators(ctx context.Context) error

	ConfigValues(ctx context.Context) (map[string]string, error)
	PutConfigValue(ctx context.Context, key, value string) error

	Close() error
}
