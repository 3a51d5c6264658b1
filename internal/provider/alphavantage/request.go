package alphavantage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"stockview/internal/provider"
)

// maxBody caps how much of an upstream response is read; Alpha Vantage
// "full" daily series for old listings stay well under this.
const maxBody = 16 << 20 // 16MB

// request performs one authenticated GET against the query endpoint and
// returns the parsed JSON document. Alpha Vantage signals throttling and
// errors through sentinel keys in an otherwise-200 body; those are mapped
// to the shared error taxonomy here so the per-operation methods only deal
// with payload extraction.
func (c *Client) request(ctx context.Context, params url.Values) (*gabs.Container, error) {
	var key string
	if c.key != nil {
		key = c.key()
	}
	if key == "" {
		return nil, provider.NewError(Name, provider.KindCredentialMissing,
			"missing API key: set alphavantage.api_key or ALPHAVANTAGE_API_KEY")
	}

	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	query.Set("apikey", key)

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, provider.WrapError(Name, provider.KindTransport, "waiting for rate limit", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, provider.WrapError(Name, provider.KindTransport, "creating request", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.WrapError(Name, provider.KindTransport, "performing request", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, provider.WrapError(Name, provider.KindTransport, "reading response", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, provider.NewError(Name, provider.KindTransport,
			fmt.Sprintf("unexpected status %d: %s", res.StatusCode, snippet))
	}

	data, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, provider.WrapError(Name, provider.KindTransport, "decoding response", err)
	}

	if data.Exists("Note") {
		return nil, provider.NewError(Name, provider.KindThrottled,
			"rate limited by Alpha Vantage, retry later")
	}
	if v, ok := data.Search("Information").Data().(string); ok {
		return nil, provider.NewError(Name, provider.KindThrottled, v)
	}
	if v, ok := data.Search("Error Message").Data().(string); ok {
		return nil, provider.NewError(Name, provider.KindRejected, v)
	}
	return data, nil
}
