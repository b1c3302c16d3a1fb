package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
	"brokercore/internal/service/execution"
)

type placeOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Type   string `json:"type"`

	// Exactly one of quantity and amount. Values may be JSON numbers or
	// strings; strings keep precision.
	Quantity   decimal.Decimal `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

type placeOrderResponse struct {
	OrderID     string           `json:"order_id"`
	Status      string           `json:"status"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	CashBalance *decimal.Decimal `json:"cash_balance,omitempty"`
	RealizedPL  *decimal.Decimal `json:"realized_pl,omitempty"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	side := models.ParseSide(req.Side)
	orderType := models.ParseType(req.Type)

	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if side == models.SideUnspecified {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if orderType == models.TypeUnspecified {
		writeError(w, http.StatusBadRequest, "type must be market or limit")
		return
	}

	result, err := s.service.PlaceOrder(r.Context(), execution.PlaceOrderRequest{
		UserID:     userID,
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   req.Quantity,
		Amount:     req.Amount,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := placeOrderResponse{
		OrderID:    result.OrderID.String(),
		Status:     result.Status.String(),
		Symbol:     symbol,
		Side:       side.String(),
		Quantity:   result.Quantity,
		Price:      result.Price,
		RealizedPL: result.RealizedPL,
	}
	if result.Status == models.StatusCompleted {
		balance := result.CashBalance
		response.CashBalance = &balance
	}

	writeJSON(w, http.StatusCreated, response)
}

type orderResponse struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
}

func orderToResponse(order models.Order) orderResponse {
	return orderResponse{
		OrderID:    order.ID.String(),
		Symbol:     order.Symbol,
		Side:       order.Side.String(),
		Type:       order.Type.String(),
		Status:     order.Status.String(),
		Quantity:   order.Quantity,
		Price:      order.Price,
		CreatedAt:  order.CreatedAt,
		ExecutedAt: order.ExecutedAt,
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "order id must be a uuid")
		return
	}

	order, err := s.service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "order id must be a uuid")
		return
	}

	if err := s.service.CancelOrder(r.Context(), orderID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"order_id": orderID.String(),
		"status":   models.StatusCancelled.String(),
	})
}

type holdingResponse struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	holdings, err := s.service.ListHoldings(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := make([]holdingResponse, 0, len(holdings))
	for _, holding := range holdings {
		response = append(response, holdingResponse{
			Symbol:    holding.Symbol,
			Quantity:  holding.Quantity,
			AvgCost:   holding.AvgCost,
			UpdatedAt: holding.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"holdings": response})
}

type transactionResponse struct {
	TransactionID string           `json:"transaction_id"`
	OrderID       string           `json:"order_id"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	RealizedPL    *decimal.Decimal `json:"realized_pl,omitempty"`
	AvgCostAtSale *decimal.Decimal `json:"avg_cost_at_sale,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	transactions, err := s.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := make([]transactionResponse, 0, len(transactions))
	for _, transaction := range transactions {
		response = append(response, transactionResponse{
			TransactionID: transaction.ID.String(),
			OrderID:       transaction.OrderID.String(),
			Symbol:        transaction.Symbol,
			Side:          transaction.Side.String(),
			Quantity:      transaction.Quantity,
			Price:         transaction.Price,
			TotalAmount:   transaction.TotalAmount,
			RealizedPL:    transaction.RealizedPL,
			AvgCostAtSale: transaction.AvgCostAtSale,
			CreatedAt:     transaction.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": response})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	balance, err := s.service.GetCashBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cash_balance": balance})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	userID, found := userIDFromContext(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	balance, err := s.service.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cash_balance": balance})
}
