package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"stockview/internal/config"
	"stockview/internal/insight"
	"stockview/internal/marketdata"
	"stockview/internal/provider"
	"stockview/internal/provider/alphavantage"
	"stockview/internal/provider/finnhub"
)

// marketData is the slice of the orchestrator the handlers use; tests
// substitute a fake.
type marketData interface {
	Quote(ctx context.Context, symbol string) (*marketdata.QuoteResult, error)
	Historical(ctx context.Context, symbol, interval, rangeKey string, adjusted bool) (*marketdata.HistoryResult, error)
	Indicator(ctx context.Context, symbol, indicator, interval string, params map[string]string) (*marketdata.IndicatorResult, error)
	ClearHistorical(ctx context.Context) error
	ProbeProvider(ctx context.Context, name, symbol string) error
}

// settings is the slice of the configuration manager the handlers use.
type settings interface {
	Snapshot() config.Config
	Update(ctx context.Context, payload []byte) (config.Config, error)
}

type handlers struct {
	svc    marketData
	cfg    settings
	logger *slog.Logger
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/quote", requireMethod(http.MethodGet, h.quote))
	mux.HandleFunc("/api/history", requireMethod(http.MethodGet, h.history))
	mux.HandleFunc("/api/indicator", requireMethod(http.MethodGet, h.indicator))
	mux.HandleFunc("/api/settings", h.settings)
	mux.HandleFunc("/api/settings/test", requireMethod(http.MethodPost, h.settingsTest))
	mux.HandleFunc("/api/cache/clear_history", requireMethod(http.MethodPost, h.clearHistory))
}

func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing symbol query param")
		return
	}
	res, err := h.svc.Quote(r.Context(), symbol)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := normalizeSymbol(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing symbol query param")
		return
	}
	snap := h.cfg.Snapshot()
	interval := q.Get("interval")
	if interval == "" {
		interval = snap.AlphaVantage.DefaultInterval
	}
	rangeKey := q.Get("range")
	if rangeKey == "" {
		rangeKey = snap.AlphaVantage.DefaultRange
	}
	adjusted := true
	if v := q.Get("adjusted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "adjusted must be a boolean")
			return
		}
		adjusted = b
	}
	res, err := h.svc.Historical(r.Context(), symbol, interval, rangeKey, adjusted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) indicator(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := normalizeSymbol(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing symbol query param")
		return
	}
	indicator := q.Get("indicator")
	if indicator == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing indicator query param")
		return
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = h.cfg.Snapshot().AlphaVantage.DefaultInterval
	}
	// Remaining query params pass through to the provider, e.g.
	// time_period=14&series_type=close.
	params := make(map[string]string)
	for k, vs := range q {
		switch k {
		case "symbol", "indicator", "interval":
			continue
		}
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	res, err := h.svc.Indicator(r.Context(), symbol, indicator, interval, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, h.cfg.Snapshot())
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
			return
		}
		updated, err := h.cfg.Update(r.Context(), body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeData(w, http.StatusOK, updated)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

type testRequest struct {
	Provider string `json:"provider"`
	Symbol   string `json:"symbol"`
}

type testResponse struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
}

// settingsTest probes the named provider live without touching the cache.
// A failed probe is still a successful request: the outcome rides in the
// ok flag.
func (h *handlers) settingsTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	switch req.Provider {
	case alphavantage.Name, finnhub.Name:
		resp := testResponse{Provider: req.Provider, OK: true}
		if err := h.svc.ProbeProvider(r.Context(), req.Provider, req.Symbol); err != nil {
			resp.OK = false
			resp.Message = err.Error()
		}
		writeData(w, http.StatusOK, resp)
	case insight.ProviderDeepseek, insight.ProviderQwen:
		res, err := insight.TestProvider(r.Context(), h.cfg.Snapshot(), req.Provider)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeData(w, http.StatusOK, testResponse{Provider: res.Provider, OK: res.OK, Message: res.Message})
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown provider: "+req.Provider)
	}
}

func (h *handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearHistorical(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusAndCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, err.Error())
}

// statusAndCode maps the provider error taxonomy onto HTTP statuses.
// Client-recoverable conditions are 4xx; upstream trouble is 502; anything
// unclassified is 500.
func statusAndCode(err error) (int, string) {
	switch kind := provider.KindOf(err); kind {
	case provider.KindCredentialMissing, provider.KindRejected, provider.KindNoData:
		return http.StatusBadRequest, string(kind)
	case provider.KindThrottled:
		return http.StatusTooManyRequests, string(kind)
	case provider.KindTransport:
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "internal"
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		next(w, r)
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]any{"success": true, "data": v})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
