package http

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/halido/binance-trade-bot/internal/service/tradeengine"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type ExecuteTradeRequest struct {
	ApiKey      string `json:"api_key"`
	RequestID   string `json:"request_id"`
	BaseSymbol  string `json:"base_symbol"`
	QuoteSymbol string `json:"quote_symbol"`
	Side        string `json:"side"`
	Source      string `json:"source"`
}

type ExecuteTradeAsyncResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type TradeRecordResponse struct {
	ID                      string      `json:"id"`
	RequestID               string      `json:"request_id"`
	BaseSymbol              string      `json:"base_symbol"`
	QuoteSymbol             string      `json:"quote_symbol"`
	Side                    string      `json:"side"`
	State                   string      `json:"state"`
	OrderID                 null.String `json:"order_id"`
	PreTradeBaseBalance     string      `json:"pre_trade_base_balance"`
	PreTradeQuoteBalance    string      `json:"pre_trade_quote_balance"`
	OrderedQuantity         string      `json:"ordered_quantity"`
	CumulativeQuoteQuantity *string     `json:"cumulative_quote_quantity,omitempty"`
	OrderedAt               *int64      `json:"ordered_at,omitempty"`
	CompletedAt             *int64      `json:"completed_at,omitempty"`
	CreatedAt               int64       `json:"created_at"`
	UpdatedAt               int64       `json:"updated_at"`
}

type Handler struct {
	tradeEngineService *tradeengine.TradeEngineService
}

func NewTradeEngineHTTPHandler(tradeEngineService *tradeengine.TradeEngineService) *Handler {
	return &Handler{tradeEngineService: tradeEngineService}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/trade-engine/v1/trades/async", h.ExecuteTradeAsync)
	mux.HandleFunc("/trade-engine/v1/trades", h.GetTradeRecord)
	mux.HandleFunc("/trade-engine/v1/trades/by-state", h.ListTradeRecords)
}

// ExecuteTradeAsync enqueues a trade request. Execution can take minutes
// (submission plus fill polling), so the gateway never runs trades inline.
func (h *Handler) ExecuteTradeAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var req ExecuteTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if err := validateAPIKey(resolveAPIKey(r, &req)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.BaseSymbol) == "" || strings.TrimSpace(req.QuoteSymbol) == "" || strings.TrimSpace(req.Side) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	tradeReq, err := mapHTTPRequestToTradeRequest(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	err = h.tradeEngineService.ExecuteAsync(r.Context(), tradeReq)
	if err != nil {
		switch {
		case errors.Is(err, tradeengine.ErrPublishTradeEventFailed):
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ExecuteTradeAsyncResponse{
		RequestID: tradeReq.RequestID,
		Status:    "queued",
	})
}

func (h *Handler) GetTradeRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(strings.TrimSpace(r.Header.Get("X-API-Key"))); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "request_id is required"})
		return
	}

	record, err := h.tradeEngineService.GetTradeRecord(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "trade record not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, mapTradeRecordToHTTPResponse(record))
}

func (h *Handler) ListTradeRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := validateAPIKey(strings.TrimSpace(r.Header.Get("X-API-Key"))); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	states := make([]string, 0)
	for _, raw := range r.URL.Query()["state"] {
		state := strings.ToUpper(strings.TrimSpace(raw))
		if state != "" {
			states = append(states, state)
		}
	}
	if len(states) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "at least one state is required"})
		return
	}

	records, err := h.tradeEngineService.ListTradeRecords(r.Context(), states)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	responses := make([]*TradeRecordResponse, 0, len(records))
	for idx := range records {
		responses = append(responses, mapTradeRecordToHTTPResponse(&records[idx]))
	}

	writeJSON(w, http.StatusOK, responses)
}

func mapHTTPRequestToTradeRequest(req *ExecuteTradeRequest) (entity.TradeRequest, error) {
	side := entity.OrderSide(strings.ToUpper(strings.TrimSpace(req.Side)))
	if side != entity.OrderSideBuy && side != entity.OrderSideSell {
		return entity.TradeRequest{}, errors.New("invalid side")
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "http"
	}

	return entity.TradeRequest{
		RequestID:   requestID,
		BaseSymbol:  strings.ToUpper(strings.TrimSpace(req.BaseSymbol)),
		QuoteSymbol: strings.ToUpper(strings.TrimSpace(req.QuoteSymbol)),
		Side:        side,
		RequestedAt: time.Now().UnixMilli(),
		Source:      source,
	}, nil
}

func mapTradeRecordToHTTPResponse(record *entity.TradeRecord) *TradeRecordResponse {
	var cumQuote *string
	if record.CumulativeQuoteQuantity != nil {
		v := record.CumulativeQuoteQuantity.String()
		cumQuote = &v
	}

	var orderedAt *int64
	if record.OrderedAt.Valid {
		v := record.OrderedAt.Time.UnixMilli()
		orderedAt = &v
	}

	var completedAt *int64
	if record.CompletedAt.Valid {
		v := record.CompletedAt.Time.UnixMilli()
		completedAt = &v
	}

	return &TradeRecordResponse{
		ID:                      record.ID,
		RequestID:               record.RequestID,
		BaseSymbol:              record.BaseSymbol,
		QuoteSymbol:             record.QuoteSymbol,
		Side:                    string(record.Side),
		State:                   string(record.State),
		OrderID:                 null.String{NullString: record.OrderID},
		PreTradeBaseBalance:     record.PreTradeBaseBalance.String(),
		PreTradeQuoteBalance:    record.PreTradeQuoteBalance.String(),
		OrderedQuantity:         record.OrderedQuantity.String(),
		CumulativeQuoteQuantity: cumQuote,
		OrderedAt:               orderedAt,
		CompletedAt:             completedAt,
		CreatedAt:               record.CreatedAt.UnixMilli(),
		UpdatedAt:               record.UpdatedAt.UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveAPIKey(r *http.Request, req *ExecuteTradeRequest) string {
	if headerKey := strings.TrimSpace(r.Header.Get("X-API-Key")); headerKey != "" {
		return headerKey
	}

	return strings.TrimSpace(req.ApiKey)
}

func validateAPIKey(rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	if config.Env == nil || len(config.Env.APIKeys) == 0 {
		return errAPIKeyInvalid
	}

	now := time.Now().UTC()
	for _, candidate := range config.Env.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
