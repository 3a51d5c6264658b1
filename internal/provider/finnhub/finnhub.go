package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockview/internal/httpx"
	"stockview/internal/provider"
)

// Name is the provider identity tag stored with every cached record this
// client produces.
const Name = "finnhub"

const defaultBaseURL = "https://finnhub.io/api/v1"

// KeyFunc resolves the API token at call time; "" means unconfigured.
type KeyFunc func() string

// Config controls the Finnhub client.
type Config struct {
	BaseURL string // defaults to the public API
	Key     KeyFunc
}

// Client talks to the Finnhub REST API. Finnhub has no documented
// per-minute limit at the tiers in scope, so calls are not rate limited
// here.
type Client struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{cfg: cfg, client: hc}
}

// Name implements provider.Client.
func (c *Client) Name() string { return Name }

// FetchQuote retrieves the latest quote for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (provider.Quote, error) {
	var data struct {
		Current       *float64 `json:"c"`
		Change        *float64 `json:"d"`
		ChangePercent *float64 `json:"dp"`
		Timestamp     int64    `json:"t"`
		Volume        float64  `json:"v"`
	}
	if err := c.request(ctx, "quote", url.Values{"symbol": {symbol}}, &data); err != nil {
		return provider.Quote{}, err
	}
	var changePercent string
	if data.ChangePercent != nil {
		changePercent = strconv.FormatFloat(*data.ChangePercent, 'f', -1, 64) + "%"
	}
	return provider.Quote{
		Symbol:           symbol,
		Price:            data.Current,
		Change:           data.Change,
		ChangePercent:    changePercent,
		Volume:           int64(data.Volume),
		LatestTradingDay: tsToDate(data.Timestamp),
	}, nil
}

// FetchOverview retrieves company metadata for symbol.
func (c *Client) FetchOverview(ctx context.Context, symbol string) (provider.Overview, error) {
	var data struct {
		Ticker    string   `json:"ticker"`
		Name      string   `json:"name"`
		Industry  string   `json:"finnhubIndustry"`
		MarketCap *float64 `json:"marketCapitalization"`
		PERatio   *float64 `json:"peBasicExclExtraTTM"`
		WebURL    string   `json:"weburl"`
	}
	if err := c.request(ctx, "stock/profile2", url.Values{"symbol": {symbol}}, &data); err != nil {
		return provider.Overview{}, err
	}
	if data.Ticker == "" && data.Name == "" {
		return provider.Overview{}, provider.NewError(Name, provider.KindNoData,
			"no company overview returned for "+symbol)
	}
	return provider.Overview{
		Symbol:    data.Ticker,
		Name:      data.Name,
		Industry:  data.Industry,
		MarketCap: formatOptional(data.MarketCap),
		PERatio:   formatOptional(data.PERatio),
		Website:   data.WebURL,
	}, nil
}

// FetchTimeSeries retrieves candles over a range-derived lookback window.
// Finnhub has no adjusted concept: the flag is ignored and close doubles
// as adjusted_close.
func (c *Client) FetchTimeSeries(ctx context.Context, req provider.TimeSeriesRequest) (provider.Series, error) {
	now := time.Now().Unix()
	start := now - int64(lookbackDays(req.Range))*24*60*60

	var data struct {
		Status     string    `json:"s"`
		Timestamps []int64   `json:"t"`
		Opens      []float64 `json:"o"`
		Highs      []float64 `json:"h"`
		Lows       []float64 `json:"l"`
		Closes     []float64 `json:"c"`
		Volumes    []float64 `json:"v"`
	}
	params := url.Values{
		"symbol":     {req.Symbol},
		"resolution": {resolution(req.Interval)},
		"from":       {strconv.FormatInt(start, 10)},
		"to":         {strconv.FormatInt(now, 10)},
	}
	if err := c.request(ctx, "stock/candle", params, &data); err != nil {
		return provider.Series{}, err
	}
	if data.Status != "ok" {
		return provider.Series{}, provider.NewError(Name, provider.KindNoData,
			"no historical data available for "+req.Symbol)
	}

	bars := make([]provider.Bar, 0, len(data.Timestamps))
	for i, ts := range data.Timestamps {
		if i >= len(data.Opens) || i >= len(data.Highs) || i >= len(data.Lows) || i >= len(data.Closes) {
			break
		}
		o, h, l, cl := data.Opens[i], data.Highs[i], data.Lows[i], data.Closes[i]
		var volume int64
		if i < len(data.Volumes) {
			volume = int64(data.Volumes[i])
		}
		bars = append(bars, provider.Bar{
			Timestamp:     tsToISO(ts),
			Open:          &o,
			High:          &h,
			Low:           &l,
			Close:         &cl,
			AdjustedClose: &cl,
			Volume:        volume,
		})
	}
	return provider.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Range:    req.Range,
		Adjusted: false,
		Bars:     bars,
	}, nil
}

// FetchIndicator retrieves a technical-indicator series. The response
// carries one array per indicator field next to the shared timestamp
// array, so it is decoded generically.
func (c *Client) FetchIndicator(ctx context.Context, req provider.IndicatorRequest) (provider.IndicatorSeries, error) {
	params := url.Values{
		"symbol":     {req.Symbol},
		"resolution": {resolution(req.Interval)},
		"indicator":  {strings.ToLower(req.Indicator)},
	}
	for k, v := range req.Params {
		params.Set(k, v)
	}
	var data map[string]any
	if err := c.request(ctx, "indicator", params, &data); err != nil {
		return provider.IndicatorSeries{}, err
	}
	if s, _ := data["s"].(string); s != "ok" {
		return provider.IndicatorSeries{}, provider.NewError(Name, provider.KindNoData,
			"no indicator data returned for "+req.Symbol)
	}

	timestamps, _ := data["t"].([]any)
	fields := make(map[string][]any)
	for key, value := range data {
		if key == "t" {
			continue
		}
		if list, ok := value.([]any); ok {
			fields[strings.ToLower(key)] = list
		}
	}

	points := make([]provider.IndicatorPoint, 0, len(timestamps))
	for i, raw := range timestamps {
		ts, ok := raw.(float64)
		if !ok {
			continue
		}
		values := make(map[string]float64, len(fields))
		for key, list := range fields {
			if i < len(list) {
				if f, ok := list[i].(float64); ok {
					values[key] = f
				}
			}
		}
		points = append(points, provider.IndicatorPoint{
			Timestamp: tsToISO(int64(ts)),
			Values:    values,
		})
	}
	return provider.IndicatorSeries{
		Symbol:    req.Symbol,
		Indicator: strings.ToUpper(req.Indicator),
		Interval:  req.Interval,
		Params:    req.Params,
		Points:    points,
	}, nil
}

// request performs one authenticated GET and decodes the JSON body into
// out. Finnhub surfaces failures as non-2xx statuses or an "error" key in
// an otherwise-200 body.
func (c *Client) request(ctx context.Context, path string, params url.Values, out any) error {
	var token string
	if c.cfg.Key != nil {
		token = c.cfg.Key()
	}
	if token == "" {
		return provider.NewError(Name, provider.KindCredentialMissing,
			"missing API key: set finnhub.api_key or FINNHUB_API_KEY")
	}

	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	query.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/"+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return provider.WrapError(Name, provider.KindTransport, "creating request", err)
	}
	res, err := c.client.Do(ctx, req)
	if err != nil {
		return provider.WrapError(Name, provider.KindTransport, "performing request", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return provider.WrapError(Name, provider.KindTransport, "reading response", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return provider.NewError(Name, provider.KindTransport,
			fmt.Sprintf("request failed (%d): %s", res.StatusCode, snippet))
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return provider.NewError(Name, provider.KindRejected, envelope.Error)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return provider.WrapError(Name, provider.KindTransport, "decoding response", err)
	}
	return nil
}

// resolution maps an interval name to a Finnhub resolution code.
func resolution(interval string) string {
	if provider.IsIntraday(interval) {
		return strings.TrimSuffix(provider.IntradayStep(interval), "min")
	}
	switch interval {
	case "weekly":
		return "W"
	case "monthly":
		return "M"
	}
	return "D"
}

// lookbackDays picks a candle window wide enough to cover the requested
// range after the orchestrator slices it down to trading days.
func lookbackDays(rangeKey string) int {
	switch rangeKey {
	case "1D":
		return 2
	case "1W":
		return 14
	case "1M":
		return 60
	case "3M":
		return 200
	case "1Y":
		return 400
	case "MAX":
		return 5 * 365
	}
	return 120
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func tsToISO(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05")
}

func tsToDate(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
