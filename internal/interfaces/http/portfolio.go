package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"nivesh/internal/domain/portfolio"
	"nivesh/internal/shared/middleware"
)

type PortfolioHandler struct {
	accounts     portfolio.AccountRepository
	holdings     portfolio.HoldingRepository
	transactions portfolio.TransactionRepository
}

func NewPortfolioHandler(
	accounts portfolio.AccountRepository,
	holdings portfolio.HoldingRepository,
	transactions portfolio.TransactionRepository,
) *PortfolioHandler {
	return &PortfolioHandler{accounts: accounts, holdings: holdings, transactions: transactions}
}

// HandleAccounts serves GET /api/accounts: all linked accounts for the user.
func (h *PortfolioHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accounts, err := h.accounts.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing accounts for user %d: %v", userID, err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*portfolio.LinkedAccount{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// HandleAccountHoldings serves GET /api/accounts/{id}/holdings.
func (h *PortfolioHandler) HandleAccountHoldings(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	holdings, err := h.holdings.ListByAccountID(r.Context(), account.ID)
	if err != nil {
		log.Printf("Error listing holdings for account %d: %v", account.ID, err)
		http.Error(w, "Failed to list holdings", http.StatusInternalServerError)
		return
	}
	if holdings == nil {
		holdings = []*portfolio.Holding{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holdings)
}

// HandleAccountTransactions serves GET /api/accounts/{id}/transactions.
func (h *PortfolioHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}

	txns, err := h.transactions.ListByAccountID(r.Context(), account.ID)
	if err != nil {
		log.Printf("Error listing transactions for account %d: %v", account.ID, err)
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []*portfolio.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txns)
}

// ownedAccount loads the {id} account and enforces ownership. A foreign
// account reads as not-found, never as forbidden, to avoid leaking account
// existence.
func (h *PortfolioHandler) ownedAccount(w http.ResponseWriter, r *http.Request) (*portfolio.LinkedAccount, bool) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return nil, false
	}

	account, err := h.accounts.GetByID(r.Context(), id)
	if errors.Is(err, portfolio.ErrAccountNotFound) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Printf("Error loading account %d: %v", id, err)
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return nil, false
	}
	if account.UserID != userID {
		http.Error(w, "Account not found", http.StatusNotFound)
		return nil, false
	}
	return account, true
}
