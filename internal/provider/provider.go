package provider

import (
	"context"
	"strings"
)

// Quote is the normalized real-time quote shape shared by all providers.
// Numeric fields that an upstream may omit or return unparseable are
// pointers so the distinction between zero and absent survives caching.
type Quote struct {
	Symbol           string   `json:"symbol"`
	Price            *float64 `json:"price"`
	Change           *float64 `json:"change"`
	ChangePercent    string   `json:"change_percent"`
	Volume           int64    `json:"volume"`
	LatestTradingDay string   `json:"latest_trading_day"`
}

// Overview is normalized company metadata.
type Overview struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
	MarketCap   string `json:"market_cap"`
	PERatio     string `json:"pe_ratio"`
	Website     string `json:"website"`
}

// Bar is one OHLCV observation. AdjustedClose falls back to Close when the
// upstream has no adjusted concept. Immutable once produced.
type Bar struct {
	Timestamp     string   `json:"timestamp"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Close         *float64 `json:"close"`
	AdjustedClose *float64 `json:"adjusted_close"`
	Volume        int64    `json:"volume"`
}

// Series is a raw historical series as fetched from one provider. Bars keep
// the provider-native ordering; the orchestrator sorts and slices.
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Range    string `json:"range"`
	Adjusted bool   `json:"adjusted"`
	Bars     []Bar  `json:"series"`
}

// IndicatorPoint is one observation of a technical indicator. Field names
// are lower-cased and values coerced to float64 regardless of how the
// upstream encodes them.
type IndicatorPoint struct {
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// IndicatorSeries is a raw indicator series as fetched from one provider.
type IndicatorSeries struct {
	Symbol    string            `json:"symbol"`
	Indicator string            `json:"indicator"`
	Interval  string            `json:"interval"`
	Params    map[string]string `json:"params,omitempty"`
	Points    []IndicatorPoint  `json:"series"`
}

// TimeSeriesRequest describes one historical-series fetch.
type TimeSeriesRequest struct {
	Symbol     string
	Interval   string // daily | weekly | monthly | intraday_<N>min
	OutputSize string // compact | full
	Adjusted   bool
	Range      string // 1D | 1W | 1M | 3M | 1Y | MAX
}

// IndicatorRequest describes one indicator fetch.
type IndicatorRequest struct {
	Symbol    string
	Indicator string
	Interval  string
	Params    map[string]string
}

// Client is the capability contract every upstream data provider
// implements. Implementations map their raw JSON to the normalized shapes
// above and surface failures as *Error.
type Client interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	FetchOverview(ctx context.Context, symbol string) (Overview, error)
	FetchTimeSeries(ctx context.Context, req TimeSeriesRequest) (Series, error)
	FetchIndicator(ctx context.Context, req IndicatorRequest) (IndicatorSeries, error)
}

// IsIntraday reports whether interval names an intraday resolution, e.g.
// "intraday_5min".
func IsIntraday(interval string) bool {
	return strings.HasPrefix(interval, "intraday")
}

// IntradayStep extracts the step from an intraday interval:
// "intraday_5min" -> "5min". Returns the input unchanged when it has no
// underscore suffix.
func IntradayStep(interval string) string {
	if _, step, ok := strings.Cut(interval, "_"); ok {
		return step
	}
	return interval
}
