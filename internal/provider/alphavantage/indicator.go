package alphavantage

import (
	"context"
	"net/url"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"stockview/internal/provider"
)

// FetchIndicator retrieves a technical-indicator series. Value field names
// are lower-cased and coerced to float64; unparseable fields are dropped.
func (c *Client) FetchIndicator(ctx context.Context, req provider.IndicatorRequest) (provider.IndicatorSeries, error) {
	params := url.Values{
		"function": {strings.ToUpper(req.Indicator)},
		"symbol":   {req.Symbol},
		"interval": {req.Interval},
		"datatype": {"json"},
	}
	for k, v := range req.Params {
		params.Set(k, v)
	}

	data, err := c.request(ctx, params)
	if err != nil {
		return provider.IndicatorSeries{}, err
	}

	// The data lives under a key such as "Technical Analysis: SMA".
	var node *gabs.Container
	for key, child := range data.ChildrenMap() {
		if strings.Contains(key, "Technical Analysis") {
			node = child
			break
		}
	}
	if node == nil {
		return provider.IndicatorSeries{}, provider.NewError(Name, provider.KindNoData,
			"no indicator data found in response")
	}

	children := node.ChildrenMap()
	points := make([]provider.IndicatorPoint, 0, len(children))
	for ts, values := range children {
		fields := make(map[string]float64, len(values.ChildrenMap()))
		for name, raw := range values.ChildrenMap() {
			if f := coerceFloat(raw); f != nil {
				fields[strings.ToLower(name)] = *f
			}
		}
		points = append(points, provider.IndicatorPoint{Timestamp: ts, Values: fields})
	}
	return provider.IndicatorSeries{
		Symbol:    req.Symbol,
		Indicator: strings.ToUpper(req.Indicator),
		Interval:  req.Interval,
		Params:    req.Params,
		Points:    points,
	}, nil
}
