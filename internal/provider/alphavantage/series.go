package alphavantage

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"stockview/internal/provider"
)

// FetchTimeSeries retrieves an unsliced historical series. Bars carry no
// particular order: the payload is a JSON object keyed by timestamp and
// object order does not survive decoding, so the orchestrator sorts before
// slicing.
func (c *Client) FetchTimeSeries(ctx context.Context, req provider.TimeSeriesRequest) (provider.Series, error) {
	params := seriesParams(req.Interval, req.Adjusted)
	params.Set("symbol", req.Symbol)
	params.Set("outputsize", req.OutputSize)

	data, err := c.request(ctx, params)
	if err != nil {
		return provider.Series{}, err
	}

	// The series lives under a payload-dependent key such as
	// "Time Series (Daily)" or "Weekly Adjusted Time Series".
	var node *gabs.Container
	for key, child := range data.ChildrenMap() {
		if strings.Contains(key, "Time Series") {
			node = child
			break
		}
	}
	if node == nil {
		return provider.Series{}, provider.NewError(Name, provider.KindNoData,
			"no time series found in response")
	}

	children := node.ChildrenMap()
	bars := make([]provider.Bar, 0, len(children))
	for ts, values := range children {
		bars = append(bars, parseBar(ts, values))
	}
	return provider.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Range:    req.Range,
		Adjusted: req.Adjusted,
		Bars:     bars,
	}, nil
}

// seriesParams resolves an interval name and adjusted flag to the
// provider-specific function code.
func seriesParams(interval string, adjusted bool) url.Values {
	if provider.IsIntraday(interval) {
		return url.Values{
			"function": {"TIME_SERIES_INTRADAY"},
			"interval": {provider.IntradayStep(interval)},
			"adjusted": {strconv.FormatBool(adjusted)},
		}
	}
	function := "TIME_SERIES_DAILY"
	switch interval {
	case "weekly":
		function = "TIME_SERIES_WEEKLY"
	case "monthly":
		function = "TIME_SERIES_MONTHLY"
	}
	if adjusted {
		switch interval {
		case "daily":
			function = "TIME_SERIES_DAILY_ADJUSTED"
		case "weekly":
			function = "TIME_SERIES_WEEKLY_ADJUSTED"
		case "monthly":
			function = "TIME_SERIES_MONTHLY_ADJUSTED"
		}
	}
	return url.Values{"function": {function}}
}

func parseBar(timestamp string, values *gabs.Container) provider.Bar {
	bar := provider.Bar{
		Timestamp:     timestamp,
		Open:          floatAt(values, "1. open"),
		High:          floatAt(values, "2. high"),
		Low:           floatAt(values, "3. low"),
		Close:         floatAt(values, "4. close"),
		AdjustedClose: floatAt(values, "5. adjusted close"),
		Volume:        intAt(values, "6. volume"),
	}
	if bar.AdjustedClose == nil {
		bar.AdjustedClose = bar.Close
	}
	if bar.Volume == 0 {
		// Unadjusted payloads carry volume under "5. volume".
		bar.Volume = intAt(values, "5. volume")
	}
	return bar
}
