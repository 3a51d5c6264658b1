// fetch is a one-shot query tool: it runs the same cache-backed service
// the server uses and prints the result as indented JSON. Useful for
// warming the cache and for inspecting provider responses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stockview/internal/config"
	"stockview/internal/httpx"
	"stockview/internal/logx"
	"stockview/internal/marketdata"
	"stockview/internal/provider/alphavantage"
	"stockview/internal/provider/finnhub"
	"stockview/internal/provider/ratelimit"
	"stockview/internal/store"
)

func main() {
	var (
		kind       string
		symbol     string
		interval   string
		rangeKey   string
		adjusted   bool
		indicator  string
		paramsCSV  string
		configPath string
	)
	flag.StringVar(&kind, "kind", "quote", "query kind: quote | history | indicator")
	flag.StringVar(&symbol, "symbol", "", "ticker symbol (required)")
	flag.StringVar(&interval, "interval", "", "interval (daily | weekly | monthly | intraday_<N>min); defaults from config")
	flag.StringVar(&rangeKey, "range", "", "range (1D | 1W | 1M | 3M | 1Y | MAX); defaults from config")
	flag.BoolVar(&adjusted, "adjusted", true, "request adjusted prices")
	flag.StringVar(&indicator, "indicator", "", "indicator name for -kind=indicator, e.g. SMA")
	flag.StringVar(&paramsCSV, "params", "", "indicator params as k=v pairs, comma separated")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.Parse()

	logger := logx.New("warn")
	if symbol == "" {
		logger.Error("missing -symbol")
		os.Exit(2)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	st, err := store.NewSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mgr, err := config.NewManager(ctx, cfg, st)
	if err != nil {
		logger.Error("config manager", "error", err)
		os.Exit(1)
	}
	snap := mgr.Snapshot()
	if interval == "" {
		interval = snap.AlphaVantage.DefaultInterval
	}
	if rangeKey == "" {
		rangeKey = snap.AlphaVantage.DefaultRange
	}

	httpClient := httpx.New(time.Duration(snap.Server.RequestTimeoutSec) * time.Second)
	av := alphavantage.New(
		func() string { return mgr.Snapshot().AlphaVantageKey() },
		alphavantage.WithHTTPClient(httpClient.HTTP),
		alphavantage.WithLimiter(ratelimit.NewSlidingWindow(snap.AlphaVantage.RateLimitPerMin, time.Minute)),
	)
	fh := finnhub.New(finnhub.Config{
		Key: func() string { return mgr.Snapshot().FinnhubKey() },
	}, httpClient)
	svc := marketdata.New(mgr, st, av, fh)

	var out any
	switch kind {
	case "quote":
		out, err = svc.Quote(ctx, symbol)
	case "history":
		out, err = svc.Historical(ctx, symbol, interval, rangeKey, adjusted)
	case "indicator":
		if indicator == "" {
			logger.Error("missing -indicator")
			os.Exit(2)
		}
		out, err = svc.Indicator(ctx, symbol, indicator, interval, parseParams(paramsCSV))
	default:
		logger.Error("unknown kind", "kind", kind)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("fetch", "error", err)
		os.Exit(1)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Error("encode", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}

// parseParams turns "time_period=14,series_type=close" into a map. Pairs
// without "=" are skipped.
func parseParams(csv string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(csv, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if k, v, ok := strings.Cut(pair, "="); ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}
