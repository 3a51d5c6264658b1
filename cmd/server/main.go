package main

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
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
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logx.New("info").Error("config", "error", err)
		os.Exit(1)
	}
	logger := logx.New(cfg.Logging.Level)

	st, err := store.NewSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := config.NewManager(ctx, cfg, st)
	if err != nil {
		logger.Error("config manager", "error", err)
		os.Exit(1)
	}
	snap := mgr.Snapshot()
	if snap.AlphaVantageKey() == "" && snap.FinnhubKey() == "" {
		logger.Warn("no provider API key configured; live fetches will fail")
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
	mgr.OnProviderChange(func() {
		if err := svc.ClearAll(context.Background()); err != nil {
			logger.Error("purge caches after provider switch", "error", err)
		} else {
			logger.Info("caches purged after provider switch")
		}
	})

	h := &handlers{svc: svc, cfg: mgr, logger: logger}
	mux := http.NewServeMux()
	h.register(mux)

	srv := &http.Server{
		Addr:              ":" + snap.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(snap.Server.RequestTimeoutSec+5) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", snap.Server.Port, "provider", snap.Data.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Prefer best speed to reduce CPU usage since payloads are JSON
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
