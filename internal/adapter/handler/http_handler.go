package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/core/service"
)

type HTTPHandler struct {
	sales     *service.TimeSaleService
	admission *service.AdmissionService
	status    *service.StatusService
	logger    zerolog.Logger
}

func NewHTTPHandler(
	sales *service.TimeSaleService,
	admission *service.AdmissionService,
	status *service.StatusService,
	logger zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{sales: sales, admission: admission, status: status, logger: logger}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/time-sale", h.CreateTimeSale)
	mux.HandleFunc("GET /api/time-sale", h.ListOngoing)
	mux.HandleFunc("GET /api/time-sale/{id}", h.GetTimeSale)
	mux.HandleFunc("POST /api/time-sale/{id}/purchase", h.Purchase)
	mux.HandleFunc("GET /api/time-sale/{id}/purchase/{requestId}", h.GetPurchaseResult)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type CreateTimeSaleRequest struct {
	ProductID     string    `json:"product_id"`
	Quantity      int64     `json:"quantity"`
	DiscountPrice int64     `json:"discount_price"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
}

type TimeSaleResponse struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	Quantity          int64     `json:"quantity"`
	RemainingQuantity int64     `json:"remaining_quantity"`
	DiscountPrice     int64     `json:"discount_price"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	Status            string    `json:"status"`
}

type PurchaseHTTPRequest struct {
	UserID   string `json:"user_id"`
	Quantity int64  `json:"quantity"`
}

type PurchaseHTTPResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type PurchaseResultResponse struct {
	RequestID     string `json:"request_id"`
	Status        string `json:"status"`
	QueuePosition int64  `json:"queue_position,omitempty"`
	TotalWaiting  int64  `json:"total_waiting,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) CreateTimeSale(w http.ResponseWriter, r *http.Request) {
	var req CreateTimeSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sale, err := h.sales.CreateTimeSale(r.Context(), service.CreateTimeSaleInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		DiscountPrice: req.DiscountPrice,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTimeSale) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTimeSaleResponse(sale))
}

func (h *HTTPHandler) GetTimeSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetTimeSale(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "time sale not found"})
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTimeSaleResponse(sale))
}

func (h *HTTPHandler) ListOngoing(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	sales, err := h.sales.ListOngoing(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	resp := make([]TimeSaleResponse, 0, len(sales))
	for i := range sales {
		resp = append(resp, toTimeSaleResponse(&sales[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}

	requestID, err := h.admission.Purchase(r.Context(), r.PathValue("id"), req.UserID, req.Quantity)
	if err != nil {
		h.writePurchaseError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, PurchaseHTTPResponse{
		RequestID: requestID,
		Status:    string(domain.ResultPending),
	})
}

func (h *HTTPHandler) GetPurchaseResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.status.GetPurchaseResult(r.Context(), r.PathValue("id"), r.PathValue("requestId"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PurchaseResultResponse{
		RequestID:     res.RequestID,
		Status:        string(res.Status),
		QueuePosition: res.QueuePosition,
		TotalWaiting:  res.TotalWaiting,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writePurchaseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrSaleNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "time sale not found"})
	case errors.Is(err, domain.ErrNotInWindow):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "not in sale period"})
	case errors.Is(err, domain.ErrSoldOut):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: "sold out"})
	case errors.Is(err, service.ErrLockTimeout):
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "capacity exceeded, try again"})
	case errors.Is(err, service.ErrQueueUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable"})
	default:
		h.internalError(w, r, err)
	}
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func toTimeSaleResponse(sale *domain.TimeSale) TimeSaleResponse {
	return TimeSaleResponse{
		ID:                sale.ID,
		ProductID:         sale.ProductID,
		Quantity:          sale.Quantity,
		RemainingQuantity: sale.RemainingQuantity,
		DiscountPrice:     sale.DiscountPrice,
		StartAt:           sale.StartAt,
		EndAt:             sale.EndAt,
		Status:            string(sale.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
