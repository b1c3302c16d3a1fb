// Package httpapi exposes the execution service over JSON HTTP. All
// /api/v1 routes require a bearer token; the caller identity always comes
// from the token, never from the request body.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokercore/internal/domain/models"
	serviceErrors "brokercore/internal/errors/service"
	"brokercore/internal/logger"
	"brokercore/internal/service/execution"
)

// OrderService is the application surface the transport needs.
type OrderService interface {
	PlaceOrder(ctx context.Context, req execution.PlaceOrderRequest) (execution.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, id, userID uuid.UUID) error
	GetOrder(ctx context.Context, id, userID uuid.UUID) (models.Order, error)
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	GetCashBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

type Server struct {
	service   OrderService
	jwtSecret []byte
	metrics   http.Handler
}

// New builds the transport. metricsHandler serves GET /metrics; pass nil to
// disable the endpoint.
func New(service OrderService, jwtSecret []byte, metricsHandler http.Handler) *Server {
	return &Server{
		service:   service,
		jwtSecret: jwtSecret,
		metrics:   metricsHandler,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/orders", s.handlePlaceOrder)
	api.HandleFunc("GET /api/v1/orders/{id}", s.handleGetOrder)
	api.HandleFunc("POST /api/v1/orders/{id}/cancel", s.handleCancelOrder)
	api.HandleFunc("GET /api/v1/holdings", s.handleListHoldings)
	api.HandleFunc("GET /api/v1/transactions", s.handleListTransactions)
	api.HandleFunc("GET /api/v1/account", s.handleGetAccount)
	api.HandleFunc("POST /api/v1/account/deposits", s.handleDeposit)

	mux.Handle("/api/v1/", s.authMiddleware(api))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return recoveryMiddleware(requestIDMiddleware(loggingMiddleware(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), "encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unknown errors become an opaque 500; their detail stays in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, serviceErrors.ErrInvalidOrder),
		errors.Is(err, serviceErrors.ErrInvalidQuantity),
		errors.Is(err, serviceErrors.ErrInvalidAmount):
		status, message = http.StatusBadRequest, "invalid order parameters"
	case errors.Is(err, serviceErrors.ErrPriceUnavailable):
		status, message = http.StatusUnprocessableEntity, "no current price for instrument"
	case errors.Is(err, serviceErrors.ErrInsufficientFunds):
		status, message = http.StatusUnprocessableEntity, "insufficient funds"
	case errors.Is(err, serviceErrors.ErrNoPosition):
		status, message = http.StatusUnprocessableEntity, "no position in instrument"
	case errors.Is(err, serviceErrors.ErrInsufficientShares):
		status, message = http.StatusUnprocessableEntity, "insufficient shares"
	case errors.Is(err, serviceErrors.ErrOrderNotFound):
		status, message = http.StatusNotFound, "order not found"
	case errors.Is(err, serviceErrors.ErrAccountNotFound):
		status, message = http.StatusNotFound, "account not found"
	case errors.Is(err, serviceErrors.ErrOrderNotCancellable):
		status, message = http.StatusConflict, "order is not cancellable"
	case errors.Is(err, serviceErrors.ErrRateLimitExceeded):
		status, message = http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, serviceErrors.ErrBackendTimeout):
		status, message = http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, serviceErrors.ErrBackendUnavailable):
		status, message = http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		status, message = http.StatusInternalServerError, "internal error"
	}

	if status == http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", zap.Error(err))
	}

	writeError(w, status, message)
}
