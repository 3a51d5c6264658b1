// Package marketdata is the cache-and-provider orchestration layer: each
// query checks the store, validates freshness and provider identity, and
// on a miss delegates to the active provider client, normalizes the
// result, and writes it back.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"stockview/internal/config"
	"stockview/internal/provider"
	"stockview/internal/provider/alphavantage"
	"stockview/internal/store"
)

// Source tags tell the caller whether a result was served from the cache
// or fetched live.
const (
	SourceCache = "cache"
	SourceLive  = "live"
)

// adjustedFallbackNotice explains the adjusted-to-unadjusted substitution
// to the end user.
const adjustedFallbackNotice = "Adjusted intraday data is not available on the current plan; showing unadjusted prices instead."

// ConfigSource hands out an immutable configuration snapshot per call.
type ConfigSource interface {
	Snapshot() config.Config
}

// QuoteResult is a cached or live quote plus its source tag.
type QuoteResult struct {
	store.CachedQuote
	Source string `json:"source"`
}

// HistoryResult is a cached or live historical series plus its source tag
// and, for live fallback fetches, a user-facing notice.
type HistoryResult struct {
	store.CachedSeries
	Source string `json:"source"`
	Notice string `json:"notice,omitempty"`
}

// IndicatorResult is a cached or live indicator series plus its source tag.
type IndicatorResult struct {
	store.CachedIndicator
	Source string `json:"source"`
}

// Service orchestrates the cache store and the provider clients. It holds
// no per-request state; the active provider and TTLs are read from the
// configuration snapshot on every call.
//
// Concurrent misses for the same key are collapsed into one upstream call
// via singleflight; every waiter gets the same freshly stored record
// tagged live.
type Service struct {
	st      store.Store
	cfg     ConfigSource
	clients map[string]provider.Client
	flights singleflight.Group

	now func() time.Time // overridable for tests
}

// New builds a Service routing to the given provider clients, keyed by
// their Name().
func New(cfg ConfigSource, st store.Store, clients ...provider.Client) *Service {
	byName := make(map[string]provider.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Service{st: st, cfg: cfg, clients: byName, now: time.Now}
}

// Quote returns the latest quote with embedded company overview for
// symbol, from cache when fresh (quote TTL, same provider) and live
// otherwise.
func (s *Service) Quote(ctx context.Context, symbol string) (*QuoteResult, error) {
	snap := s.cfg.Snapshot()
	providerName := snap.Data.Provider
	ttl := time.Duration(snap.Cache.QuoteTTLSec) * time.Second

	cached, err := s.st.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Provider == providerName && cached.FetchedAt.Add(ttl).After(s.now()) {
		return &QuoteResult{CachedQuote: *cached, Source: SourceCache}, nil
	}

	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.flights.Do("quote\x00"+symbol, func() (any, error) {
		quote, err := client.FetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		// Overview failure propagates: there is no partial quote result.
		overview, err := client.FetchOverview(ctx, symbol)
		if err != nil {
			return nil, err
		}
		quote.Symbol = symbol
		rec := &store.CachedQuote{
			Quote:     quote,
			Overview:  overview,
			FetchedAt: s.now().UTC(),
			Provider:  providerName,
		}
		if err := s.st.PutQuote(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec := v.(*store.CachedQuote)
	return &QuoteResult{CachedQuote: *rec, Source: SourceLive}, nil
}

// Historical returns the series for (symbol, interval, range, adjusted).
// A cached entry from the same provider is permanently fresh: bars for a
// closed period do not change, so only explicit clears or a provider
// switch refresh them.
func (s *Service) Historical(ctx context.Context, symbol, interval, rangeKey string, adjusted bool) (*HistoryResult, error) {
	snap := s.cfg.Snapshot()
	providerName := snap.Data.Provider

	key := store.SeriesKey{Symbol: symbol, Interval: interval, Range: rangeKey, Adjusted: adjusted}
	cached, err := s.st.GetSeries(ctx, key)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Provider == providerName {
		return &HistoryResult{CachedSeries: *cached, Source: SourceCache}, nil
	}

	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}
	type fetched struct {
		rec    *store.CachedSeries
		notice string
	}
	flightKey := fmt.Sprintf("history\x00%s\x00%s\x00%s\x00%t", symbol, interval, rangeKey, adjusted)
	v, err, _ := s.flights.Do(flightKey, func() (any, error) {
		req := provider.TimeSeriesRequest{
			Symbol:     symbol,
			Interval:   interval,
			OutputSize: outputSize(rangeKey),
			Adjusted:   adjusted,
			Range:      rangeKey,
		}
		series, err := client.FetchTimeSeries(ctx, req)
		var notice string
		if err != nil {
			if !isAdjustedEntitlementError(err, providerName, req) {
				return nil, err
			}
			// The plan does not cover adjusted intraday data: retry once
			// unadjusted and tell the user about the substitution.
			req.Adjusted = false
			series, err = client.FetchTimeSeries(ctx, req)
			if err != nil {
				return nil, err
			}
			notice = adjustedFallbackNotice
		}

		bars := sliceRange(sortBars(series.Bars), rangeKey)
		asOf := ""
		if len(bars) > 0 {
			asOf = bars[len(bars)-1].Timestamp
		}
		rec := &store.CachedSeries{
			Series: provider.Series{
				Symbol:   symbol,
				Interval: interval,
				Range:    rangeKey,
				Adjusted: series.Adjusted, // the flag actually used
				Bars:     bars,
			},
			AsOfDate:  asOf,
			FetchedAt: s.now().UTC(),
			Provider:  providerName,
		}
		if err := s.st.PutSeries(ctx, rec); err != nil {
			return nil, err
		}
		return fetched{rec: rec, notice: notice}, nil
	})
	if err != nil {
		return nil, err
	}
	f := v.(fetched)
	return &HistoryResult{CachedSeries: *f.rec, Source: SourceLive, Notice: f.notice}, nil
}

// Indicator returns the indicator series for (symbol, indicator, interval,
// params), from cache when fresh (indicator TTL, same provider) and live
// otherwise.
func (s *Service) Indicator(ctx context.Context, symbol, indicator, interval string, params map[string]string) (*IndicatorResult, error) {
	snap := s.cfg.Snapshot()
	providerName := snap.Data.Provider
	ttl := time.Duration(snap.Cache.IndicatorTTLSec) * time.Second

	key := store.NewIndicatorKey(symbol, indicator, interval, params)
	cached, err := s.st.GetIndicator(ctx, key)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Provider == providerName && cached.FetchedAt.Add(ttl).After(s.now()) {
		return &IndicatorResult{CachedIndicator: *cached, Source: SourceCache}, nil
	}

	client, err := s.client(providerName)
	if err != nil {
		return nil, err
	}
	flightKey := fmt.Sprintf("indicator\x00%s\x00%s\x00%s\x00%s", symbol, indicator, interval, key.Params)
	v, err, _ := s.flights.Do(flightKey, func() (any, error) {
		series, err := client.FetchIndicator(ctx, provider.IndicatorRequest{
			Symbol:    symbol,
			Indicator: indicator,
			Interval:  interval,
			Params:    params,
		})
		if err != nil {
			return nil, err
		}
		// Store under the caller's key fields, not the provider's casing,
		// so lookups and writes agree.
		series.Symbol = symbol
		series.Indicator = indicator
		series.Interval = interval
		series.Params = params
		series.Points = sortPoints(series.Points)
		asOf := ""
		if len(series.Points) > 0 {
			asOf = series.Points[len(series.Points)-1].Timestamp
		}
		rec := &store.CachedIndicator{
			IndicatorSeries: series,
			AsOfDate:        asOf,
			FetchedAt:       s.now().UTC(),
			Provider:        providerName,
		}
		if err := s.st.PutIndicator(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec := v.(*store.CachedIndicator)
	return &IndicatorResult{CachedIndicator: *rec, Source: SourceLive}, nil
}

// ClearHistorical purges all stored historical series.
func (s *Service) ClearHistorical(ctx context.Context) error {
	return s.st.DeleteSeries(ctx)
}

// ClearAll purges all three record kinds. The configuration manager calls
// this whenever the active provider changes, so cross-provider data is
// never served.
func (s *Service) ClearAll(ctx context.Context) error {
	return errors.Join(
		s.st.DeleteQuotes(ctx),
		s.st.DeleteSeries(ctx),
		s.st.DeleteIndicators(ctx),
	)
}

// ProbeProvider verifies the named market-data provider end to end with a
// lightweight quote fetch. Nothing is cached.
func (s *Service) ProbeProvider(ctx context.Context, name, symbol string) error {
	client, err := s.client(name)
	if err != nil {
		return err
	}
	if symbol == "" {
		symbol = "AAPL"
	}
	_, err = client.FetchQuote(ctx, symbol)
	return err
}

func (s *Service) client(name string) (provider.Client, error) {
	c, ok := s.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown data provider %q", name)
	}
	return c, nil
}

// outputSize bounds upstream payload size: compact for short ranges, full
// for the rest.
func outputSize(rangeKey string) string {
	switch rangeKey {
	case "1D", "1W", "1M", "3M":
		return "compact"
	}
	return "full"
}

// isAdjustedEntitlementError reports whether err is the Alpha Vantage
// "premium endpoint" rejection for an adjusted intraday request, the one
// failure the orchestrator recovers from.
func isAdjustedEntitlementError(err error, providerName string, req provider.TimeSeriesRequest) bool {
	if providerName != alphavantage.Name {
		return false
	}
	if !req.Adjusted || !provider.IsIntraday(req.Interval) {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "premium")
}
