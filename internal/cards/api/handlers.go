package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"argentum/internal/cards/application"
	"argentum/internal/cards/domain"
	"argentum/internal/common/logging"
	"argentum/internal/common/types"
)

// Handler handles HTTP requests for the cards context.
// Authentication happens upstream; the gateway forwards the verified
// principal in the X-Username, X-Customer-Id, and X-Role headers and the
// handler enforces owner-or-admin access on every card-targeting route.
type Handler struct {
	service *application.CardService
}

// NewHandler creates a new Handler.
func NewHandler(service *application.CardService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the card routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /cards", h.ListCards)
	mux.HandleFunc("GET /cards/{id}", h.GetCard)
	mux.HandleFunc("GET /cards/customer/{customerId}", h.ListCustomerCards)
	mux.HandleFunc("POST /cards/debit", h.CreateDebitCard)
	mux.HandleFunc("POST /cards/credit", h.CreateCreditCard)
	mux.HandleFunc("POST /cards/{id}/associate-account", h.AssociateAccount)
	mux.HandleFunc("PUT /cards/{id}/main-account/{accountId}", h.SetMainAccount)
	mux.HandleFunc("PUT /cards/{id}/block", h.BlockCard)
	mux.HandleFunc("PUT /cards/{id}/activate", h.ActivateCard)
	mux.HandleFunc("POST /cards/{id}/payment", h.ProcessPayment)
	mux.HandleFunc("GET /cards/{id}/balance", h.GetBalance)
	mux.HandleFunc("GET /cards/{id}/transactions", h.GetTransactions)
	mux.HandleFunc("DELETE /cards/{id}", h.DeleteCard)
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// actorFromRequest builds the access context from the gateway headers.
func actorFromRequest(r *http.Request) (domain.Actor, error) {
	username := r.Header.Get("X-Username")
	if username == "" {
		return domain.Actor{}, errors.New("X-Username header is required")
	}
	role := domain.Role(r.Header.Get("X-Role"))
	if role == "" {
		role = domain.RoleCustomer
	}
	return domain.Actor{
		Username:   username,
		CustomerID: types.CustomerID(r.Header.Get("X-Customer-Id")),
		Role:       role,
	}, nil
}

// loadAuthorized loads a card and enforces the owner-or-admin guard.
// Absence is reported before denial, so 404 always wins over 403.
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request, actor domain.Actor) (*application.CardDTO, domain.CardID, bool) {
	cardID, err := domain.ParseCardID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id", "")
		return nil, domain.CardID{}, false
	}

	card, err := h.service.FindByID(r.Context(), cardID)
	if err != nil {
		handleServiceError(w, err)
		return nil, domain.CardID{}, false
	}
	if !domain.CanAccess(actor, types.CustomerID(card.CustomerID)) {
		writeError(w, http.StatusForbidden, "access to this card is forbidden", "")
		return nil, domain.CardID{}, false
	}
	return card, cardID, true
}

// ListCards handles GET /cards.
// Admins see every card; customers see only their own.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	if actor.IsAdmin() {
		cards, err := h.service.FindAll(ctx)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cards)
		return
	}

	cards, err := h.service.FindByCustomer(ctx, actor.CustomerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// GetCard handles GET /cards/{id}.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	card, _, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ListCustomerCards handles GET /cards/customer/{customerId}.
func (h *Handler) ListCustomerCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	customerID := types.CustomerID(r.PathValue("customerId"))
	if customerID.IsEmpty() {
		writeError(w, http.StatusBadRequest, "customer id is required", "")
		return
	}
	if !domain.CanAccess(actor, customerID) {
		writeError(w, http.StatusForbidden, "access to this customer's cards is forbidden", "")
		return
	}

	cards, err := h.service.FindByCustomer(ctx, customerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// CreateDebitCardRequest is the JSON request body for issuing a debit card.
type CreateDebitCardRequest struct {
	CustomerID    string `json:"customer_id"`
	MainAccountID string `json:"main_account_id"`
}

// CreateDebitCard handles POST /cards/debit.
func (h *Handler) CreateDebitCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	var req CreateDebitCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	customerID := types.CustomerID(req.CustomerID)
	if customerID.IsEmpty() {
		customerID = actor.CustomerID
	}
	if !domain.CanAccess(actor, customerID) {
		writeError(w, http.StatusForbidden, "cannot issue cards for another customer", "")
		return
	}

	card, err := h.service.CreateDebitCard(ctx, application.CreateDebitCardRequest{
		CustomerID:    customerID,
		MainAccountID: req.MainAccountID,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// CreateCreditCardRequest is the JSON request body for issuing a credit card.
type CreateCreditCardRequest struct {
	CustomerID string `json:"customer_id"`
	CreditID   string `json:"credit_id"`
}

// CreateCreditCard handles POST /cards/credit.
func (h *Handler) CreateCreditCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	var req CreateCreditCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	customerID := types.CustomerID(req.CustomerID)
	if customerID.IsEmpty() {
		customerID = actor.CustomerID
	}
	if !domain.CanAccess(actor, customerID) {
		writeError(w, http.StatusForbidden, "cannot issue cards for another customer", "")
		return
	}

	card, err := h.service.CreateCreditCard(ctx, application.CreateCreditCardRequest{
		CustomerID:    customerID,
		CreditID:      req.CreditID,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// AssociateAccountRequest is the JSON request body for associating an account.
type AssociateAccountRequest struct {
	AccountID string `json:"account_id"`
}

// AssociateAccount handles POST /cards/{id}/associate-account.
func (h *Handler) AssociateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	var req AssociateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required", "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	card, err := h.service.AssociateAccount(ctx, cardID, req.AccountID, logging.CorrelationIDFromContext(ctx))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// SetMainAccount handles PUT /cards/{id}/main-account/{accountId}.
func (h *Handler) SetMainAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	accountID := r.PathValue("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account id is required", "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	card, err := h.service.SetMainAccount(ctx, cardID, accountID, logging.CorrelationIDFromContext(ctx))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// BlockCard handles PUT /cards/{id}/block.
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.BlockCard)
}

// ActivateCard handles PUT /cards/{id}/activate.
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.ActivateCard)
}

func (h *Handler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	transition func(ctx context.Context, cardID domain.CardID, correlationID types.CorrelationID) (*application.CardDTO, error),
) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	card, err := transition(ctx, cardID, logging.CorrelationIDFromContext(ctx))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ProcessPaymentRequest is the JSON request body for a payment.
type ProcessPaymentRequest struct {
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Description string `json:"description"`
	Merchant    string `json:"merchant"`
}

// ProcessPayment handles POST /cards/{id}/payment.
// The Idempotency-Key header, when present, makes the payment replay-safe.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	var req ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	amount, err := types.NewMoneyFromString(req.Amount.Value, req.Amount.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	result, err := h.service.ProcessPayment(ctx, application.PaymentRequest{
		CardID:         cardID,
		Amount:         amount,
		Description:    req.Description,
		Merchant:       req.Merchant,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		CorrelationID:  logging.CorrelationIDFromContext(ctx),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BalanceResponse is the JSON response for a balance query.
type BalanceResponse struct {
	CardID  string      `json:"card_id"`
	Balance types.Money `json:"balance"`
}

// GetBalance handles GET /cards/{id}/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	balance, err := h.service.MainAccountBalance(ctx, cardID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{CardID: cardID.String(), Balance: balance})
}

// TransactionResponse is the JSON representation of a ledger entry.
type TransactionResponse struct {
	ID          string      `json:"id"`
	CardID      string      `json:"card_id"`
	AccountID   string      `json:"account_id,omitempty"`
	CreditID    string      `json:"credit_id,omitempty"`
	Amount      types.Money `json:"amount"`
	Description string      `json:"description,omitempty"`
	Merchant    string      `json:"merchant,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

const defaultTransactionLimit = 10

// GetTransactions handles GET /cards/{id}/transactions.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = parsed
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	transactions, err := h.service.LastTransactions(ctx, cardID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]TransactionResponse, len(transactions))
	for i, tx := range transactions {
		responses[i] = TransactionResponse{
			ID:          tx.ID,
			CardID:      tx.CardID.String(),
			AccountID:   tx.AccountID,
			CreditID:    tx.CreditID,
			Amount:      tx.Amount,
			Description: tx.Description,
			Merchant:    tx.Merchant,
			OccurredAt:  tx.OccurredAt,
		}
	}
	writeJSON(w, http.StatusOK, responses)
}

// DeleteCard handles DELETE /cards/{id}.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}

	_, cardID, ok := h.loadAuthorized(w, r, actor)
	if !ok {
		return
	}

	if err := h.service.DeleteCard(ctx, cardID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card not found", "")
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, err.Error(), "INSUFFICIENT_BALANCE")
	case errors.Is(err, domain.ErrInvalidOperation), errors.Is(err, domain.ErrEmptyCustomerID):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent modification, retry the request", "")
	default:
		logging.Error("Internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
