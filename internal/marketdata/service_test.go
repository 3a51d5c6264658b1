package marketdata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockview/internal/config"
	"stockview/internal/provider"
	"stockview/internal/store"
)

type staticConfig struct {
	cfg config.Config
}

func (c *staticConfig) Snapshot() config.Config { return c.cfg }

type fakeClient struct {
	name           string
	quoteCalls     int
	seriesCalls    int
	indicatorCalls int

	quote     func(symbol string) (provider.Quote, error)
	overview  func(symbol string) (provider.Overview, error)
	series    func(req provider.TimeSeriesRequest) (provider.Series, error)
	indicator func(req provider.IndicatorRequest) (provider.IndicatorSeries, error)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) FetchQuote(_ context.Context, symbol string) (provider.Quote, error) {
	f.quoteCalls++
	if f.quote == nil {
		price := 100.0
		return provider.Quote{Symbol: symbol, Price: &price}, nil
	}
	return f.quote(symbol)
}

func (f *fakeClient) FetchOverview(_ context.Context, symbol string) (provider.Overview, error) {
	if f.overview == nil {
		return provider.Overview{Symbol: symbol, Name: symbol + " Inc"}, nil
	}
	return f.overview(symbol)
}

func (f *fakeClient) FetchTimeSeries(_ context.Context, req provider.TimeSeriesRequest) (provider.Series, error) {
	f.seriesCalls++
	if f.series == nil {
		return provider.Series{
			Symbol: req.Symbol, Interval: req.Interval, Range: req.Range, Adjusted: req.Adjusted,
			Bars: dailyBars(3),
		}, nil
	}
	return f.series(req)
}

func (f *fakeClient) FetchIndicator(_ context.Context, req provider.IndicatorRequest) (provider.IndicatorSeries, error) {
	f.indicatorCalls++
	if f.indicator == nil {
		return provider.IndicatorSeries{
			Symbol: req.Symbol, Indicator: req.Indicator, Interval: req.Interval,
			Points: []provider.IndicatorPoint{
				{Timestamp: "2024-05-01", Values: map[string]float64{"sma": 101.5}},
			},
		}, nil
	}
	return f.indicator(req)
}

// dailyBars builds n consecutive daily bars in ascending order ending
// 2024-05-01.
func dailyBars(n int) []provider.Bar {
	bars := make([]provider.Bar, 0, n)
	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := n - 1; i >= 0; i-- {
		c := 100.0 + float64(i)
		bars = append(bars, provider.Bar{
			Timestamp: end.AddDate(0, 0, -i).Format("2006-01-02"),
			Open:      &c, High: &c, Low: &c, Close: &c, AdjustedClose: &c,
			Volume: int64(1000 + i),
		})
	}
	return bars
}

func newTestService(t *testing.T, clients ...provider.Client) (*Service, *staticConfig, *time.Time) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfgSrc := &staticConfig{cfg: config.Default()}
	svc := New(cfgSrc, st, clients...)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	nowPtr := &now
	svc.now = func() time.Time { return *nowPtr }
	return svc, cfgSrc, nowPtr
}

func TestQuoteCachesWithinTTL(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{name: "alphavantage"}
	svc, _, now := newTestService(t, fc)

	// Act: first call is a miss.
	res, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	require.Equal(t, "AAPL", res.Symbol)
	require.Equal(t, "alphavantage", res.Provider)

	// Act: one second before the TTL expires the cache answers.
	*now = now.Add(59 * time.Second)
	res, err = svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceCache, res.Source)
	require.Equal(t, 1, fc.quoteCalls)

	// Act: past the TTL the fetch happens again.
	*now = now.Add(2 * time.Second)
	res, err = svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	require.Equal(t, 2, fc.quoteCalls)
}

func TestQuoteProviderIdentityInvalidates(t *testing.T) {
	t.Parallel()

	av := &fakeClient{name: "alphavantage"}
	fh := &fakeClient{name: "finnhub"}
	svc, cfgSrc, _ := newTestService(t, av, fh)

	res, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, "alphavantage", res.Provider)

	// Act: switching providers makes the fresh entry stale immediately.
	cfgSrc.cfg.Data.Provider = "finnhub"
	res, err = svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	require.Equal(t, "finnhub", res.Provider)
	require.Equal(t, 1, fh.quoteCalls)
}

func TestQuoteUnknownProvider(t *testing.T) {
	t.Parallel()

	svc, cfgSrc, _ := newTestService(t, &fakeClient{name: "alphavantage"})
	cfgSrc.cfg.Data.Provider = "bogus"

	_, err := svc.Quote(context.Background(), "AAPL")
	require.ErrorContains(t, err, "unknown data provider")
}

func TestQuoteErrorPropagatesAndNothingIsStored(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "alphavantage",
		quote: func(string) (provider.Quote, error) {
			return provider.Quote{}, provider.NewError("alphavantage", provider.KindThrottled, "rate limited")
		},
	}
	svc, _, _ := newTestService(t, fc)

	_, err := svc.Quote(context.Background(), "AAPL")
	require.Equal(t, provider.KindThrottled, provider.KindOf(err))

	cached, err := svc.st.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestHistoricalCachedEntryHasNoTTL(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{name: "alphavantage"}
	svc, _, now := newTestService(t, fc)

	res, err := svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)

	// Act: a year later the same-provider entry is still served.
	*now = now.AddDate(1, 0, 0)
	res, err = svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	require.Equal(t, SourceCache, res.Source)
	require.Equal(t, 1, fc.seriesCalls)
}

func TestHistoricalSortsSlicesAndRecordsAsOf(t *testing.T) {
	t.Parallel()

	// Arrange: 300 bars delivered newest first with outputsize captured.
	var gotReq provider.TimeSeriesRequest
	fc := &fakeClient{
		name: "alphavantage",
		series: func(req provider.TimeSeriesRequest) (provider.Series, error) {
			gotReq = req
			asc := dailyBars(300)
			desc := make([]provider.Bar, len(asc))
			for i, bar := range asc {
				desc[len(asc)-1-i] = bar
			}
			return provider.Series{
				Symbol: req.Symbol, Interval: req.Interval, Range: req.Range,
				Adjusted: req.Adjusted, Bars: desc,
			}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	// Act
	res, err := svc.Historical(context.Background(), "AAPL", "daily", "1Y", true)

	// Assert: full outputsize for long ranges, 252 ascending bars, as-of
	// date taken from the newest bar.
	require.NoError(t, err)
	require.Equal(t, "full", gotReq.OutputSize)
	require.Len(t, res.Bars, 252)
	for i := 1; i < len(res.Bars); i++ {
		require.Less(t, res.Bars[i-1].Timestamp, res.Bars[i].Timestamp)
	}
	require.Equal(t, "2024-05-01", res.AsOfDate)
	require.Equal(t, "2024-05-01", res.Bars[len(res.Bars)-1].Timestamp)
}

func TestHistoricalCompactOutputSizeForShortRanges(t *testing.T) {
	t.Parallel()

	var gotReq provider.TimeSeriesRequest
	fc := &fakeClient{
		name: "alphavantage",
		series: func(req provider.TimeSeriesRequest) (provider.Series, error) {
			gotReq = req
			return provider.Series{Symbol: req.Symbol, Interval: req.Interval,
				Range: req.Range, Adjusted: req.Adjusted, Bars: dailyBars(100)}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	res, err := svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	require.Equal(t, "compact", gotReq.OutputSize)
	require.Len(t, res.Bars, 22)
}

func TestHistoricalAdjustedFallback(t *testing.T) {
	t.Parallel()

	// Arrange: adjusted intraday is refused as premium; the unadjusted
	// retry succeeds.
	var reqs []provider.TimeSeriesRequest
	fc := &fakeClient{
		name: "alphavantage",
		series: func(req provider.TimeSeriesRequest) (provider.Series, error) {
			reqs = append(reqs, req)
			if req.Adjusted {
				return provider.Series{}, provider.NewError("alphavantage", provider.KindThrottled,
					"TIME_SERIES_INTRADAY_ADJUSTED is a premium endpoint.")
			}
			return provider.Series{Symbol: req.Symbol, Interval: req.Interval,
				Range: req.Range, Adjusted: false, Bars: dailyBars(2)}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	// Act
	res, err := svc.Historical(context.Background(), "AAPL", "intraday_5min", "1D", true)

	// Assert: one retry, unadjusted result, user-facing notice.
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.True(t, reqs[0].Adjusted)
	require.False(t, reqs[1].Adjusted)
	require.False(t, res.Adjusted)
	require.Equal(t, SourceLive, res.Source)
	require.NotEmpty(t, res.Notice)

	// Assert: the record is stored under the flag that was actually used.
	stored, err := svc.st.GetSeries(context.Background(), store.SeriesKey{
		Symbol: "AAPL", Interval: "intraday_5min", Range: "1D", Adjusted: false,
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestHistoricalNoFallbackForDailyInterval(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "alphavantage",
		series: func(provider.TimeSeriesRequest) (provider.Series, error) {
			return provider.Series{}, provider.NewError("alphavantage", provider.KindThrottled,
				"TIME_SERIES_DAILY_ADJUSTED is a premium endpoint.")
		},
	}
	svc, _, _ := newTestService(t, fc)

	_, err := svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.Equal(t, provider.KindThrottled, provider.KindOf(err))
	require.Equal(t, 1, fc.seriesCalls)
}

func TestHistoricalNoFallbackForOtherProviders(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "finnhub",
		series: func(provider.TimeSeriesRequest) (provider.Series, error) {
			return provider.Series{}, provider.NewError("finnhub", provider.KindRejected, "premium plan required")
		},
	}
	svc, cfgSrc, _ := newTestService(t, fc)
	cfgSrc.cfg.Data.Provider = "finnhub"

	_, err := svc.Historical(context.Background(), "AAPL", "intraday_5min", "1D", true)
	require.Equal(t, provider.KindRejected, provider.KindOf(err))
	require.Equal(t, 1, fc.seriesCalls)
}

func TestIndicatorCachesWithinTTL(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{name: "alphavantage"}
	svc, _, now := newTestService(t, fc)
	params := map[string]string{"time_period": "14", "series_type": "close"}

	res, err := svc.Indicator(context.Background(), "AAPL", "sma", "daily", params)
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	require.Equal(t, "sma", res.Indicator)
	require.Equal(t, "2024-05-01", res.AsOfDate)

	// Act: the same query with params in a different insertion order hits
	// the same entry while fresh.
	*now = now.Add(299 * time.Second)
	res, err = svc.Indicator(context.Background(), "AAPL", "sma", "daily",
		map[string]string{"series_type": "close", "time_period": "14"})
	require.NoError(t, err)
	require.Equal(t, SourceCache, res.Source)
	require.Equal(t, 1, fc.indicatorCalls)

	// Act: past the indicator TTL the fetch happens again.
	*now = now.Add(2 * time.Second)
	res, err = svc.Indicator(context.Background(), "AAPL", "sma", "daily", params)
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	require.Equal(t, 2, fc.indicatorCalls)
}

func TestIndicatorSortsPoints(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{
		name: "alphavantage",
		indicator: func(req provider.IndicatorRequest) (provider.IndicatorSeries, error) {
			return provider.IndicatorSeries{
				Symbol: req.Symbol, Indicator: req.Indicator, Interval: req.Interval,
				Points: []provider.IndicatorPoint{
					{Timestamp: "2024-05-01", Values: map[string]float64{"sma": 2}},
					{Timestamp: "2024-04-29", Values: map[string]float64{"sma": 1}},
					{Timestamp: "2024-04-30", Values: map[string]float64{"sma": 1.5}},
				},
			}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	res, err := svc.Indicator(context.Background(), "AAPL", "sma", "daily", nil)
	require.NoError(t, err)
	require.Equal(t, "2024-04-29", res.Points[0].Timestamp)
	require.Equal(t, "2024-05-01", res.Points[2].Timestamp)
	require.Equal(t, "2024-05-01", res.AsOfDate)
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{name: "alphavantage"}
	svc, _, _ := newTestService(t, fc)

	_, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	_, err = svc.Indicator(context.Background(), "AAPL", "sma", "daily", nil)
	require.NoError(t, err)

	// Act
	require.NoError(t, svc.ClearAll(context.Background()))

	// Assert: every category refetches.
	res, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceLive, res.Source)
	hres, err := svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	require.Equal(t, SourceLive, hres.Source)
}

func TestClearHistoricalLeavesQuotes(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{name: "alphavantage"}
	svc, _, _ := newTestService(t, fc)

	_, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)

	require.NoError(t, svc.ClearHistorical(context.Background()))

	res, err := svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, SourceCache, res.Source)
	hres, err := svc.Historical(context.Background(), "AAPL", "daily", "1M", true)
	require.NoError(t, err)
	require.Equal(t, SourceLive, hres.Source)
}

func TestProbeProvider(t *testing.T) {
	t.Parallel()

	var probed string
	fc := &fakeClient{
		name: "alphavantage",
		quote: func(symbol string) (provider.Quote, error) {
			probed = symbol
			return provider.Quote{Symbol: symbol}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	require.NoError(t, svc.ProbeProvider(context.Background(), "alphavantage", ""))
	require.Equal(t, "AAPL", probed)
	require.Error(t, svc.ProbeProvider(context.Background(), "bogus", ""))

	// Assert: probing does not populate the cache.
	cached, err := svc.st.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestConcurrentMissesCollapse(t *testing.T) {
	t.Parallel()

	// Arrange: a slow fetch so concurrent callers overlap.
	block := make(chan struct{})
	fc := &fakeClient{
		name: "alphavantage",
		quote: func(symbol string) (provider.Quote, error) {
			<-block
			return provider.Quote{Symbol: symbol}, nil
		},
	}
	svc, _, _ := newTestService(t, fc)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Quote(context.Background(), "AAPL")
			results <- err
		}()
	}
	// Let both goroutines reach the flight before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(block)
	for i := 0; i < 2; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, 1, fc.quoteCalls)
}
