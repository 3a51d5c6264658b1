package alphavantage

import (
	"context"
	"net/url"

	"stockview/internal/provider"
)

// FetchQuote retrieves the latest global quote for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (provider.Quote, error) {
	data, err := c.request(ctx, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
	})
	if err != nil {
		return provider.Quote{}, err
	}

	quote := data.Search("Global Quote")
	if quote == nil || len(quote.ChildrenMap()) == 0 {
		return provider.Quote{}, provider.NewError(Name, provider.KindNoData,
			"no quote data returned for "+symbol)
	}
	return provider.Quote{
		Symbol:           stringAt(quote, "01. symbol"),
		Price:            floatAt(quote, "05. price"),
		Change:           floatAt(quote, "09. change"),
		ChangePercent:    stringAt(quote, "10. change percent"),
		Volume:           intAt(quote, "06. volume"),
		LatestTradingDay: stringAt(quote, "07. latest trading day"),
	}, nil
}

// FetchOverview retrieves company metadata for symbol.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (provider.Overview, error) {
	data, err := c.request(ctx, url.Values{
		"function": {"OVERVIEW"},
		"symbol":   {symbol},
	})
	if err != nil {
		return provider.Overview{}, err
	}
	if len(data.ChildrenMap()) == 0 {
		return provider.Overview{}, provider.NewError(Name, provider.KindNoData,
			"no company overview returned for "+symbol)
	}
	return provider.Overview{
		Symbol:      stringAt(data, "Symbol"),
		Name:        stringAt(data, "Name"),
		Description: stringAt(data, "Description"),
		Industry:    stringAt(data, "Industry"),
		MarketCap:   stringAt(data, "MarketCapitalization"),
		PERatio:     stringAt(data, "PERatio"),
		Website:     stringAt(data, "Website"),
	}, nil
}
