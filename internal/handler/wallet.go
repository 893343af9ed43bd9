package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/service"
)

// WalletHandler handles HTTP requests for the caller's wallet.
type WalletHandler struct {
	walletService *service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// AmountRequest is the HTTP request body for funding or withdrawing.
type AmountRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// WalletResponse is the HTTP response for a wallet.
type WalletResponse struct {
	OwnerID      string                `json:"owner_id"`
	Balance      int64                 `json:"balance"`
	Transactions []TransactionResponse `json:"transactions"`
}

// LedgerEntryResponse is the HTTP response for a single credit or debit.
type LedgerEntryResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     int64               `json:"balance"`
}

// GetWallet handles GET /v1/wallets
func (h *WalletHandler) GetWallet(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	owner := actor.UserID
	if isAdmin(actor) && c.Query("owner_id") != "" {
		owner = c.Query("owner_id")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	view, err := h.walletService.GetWallet(c.Request.Context(), owner, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	txns := make([]TransactionResponse, 0, len(view.Transactions))
	for _, t := range view.Transactions {
		txns = append(txns, TransactionResponse{
			ID:          t.ID,
			Type:        string(t.Type),
			Amount:      t.Amount,
			Reference:   t.Reference,
			Description: t.Description,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}
	respondJSON(c, http.StatusOK, WalletResponse{
		OwnerID:      view.Wallet.OwnerID,
		Balance:      view.Wallet.Balance,
		Transactions: txns,
	})
}

// Fund handles POST /v1/wallets/fund
func (h *WalletHandler) Fund(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.walletService.Fund(c.Request.Context(), actor.UserID, req.Amount, req.Reference)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toLedgerEntryResponse(entry))
}

// Withdraw handles POST /v1/wallets/withdraw
func (h *WalletHandler) Withdraw(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.walletService.Withdraw(c.Request.Context(), actor.UserID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toLedgerEntryResponse(entry))
}

// DeleteWallet handles DELETE /v1/wallets/:owner
func (h *WalletHandler) DeleteWallet(c *gin.Context) {
	if err := h.walletService.DeleteWallet(c.Request.Context(), c.Param("owner")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func toLedgerEntryResponse(e *service.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		Transaction: TransactionResponse{
			ID:          e.Transaction.ID,
			Type:        string(e.Transaction.Type),
			Amount:      e.Transaction.Amount,
			Reference:   e.Transaction.Reference,
			Description: e.Transaction.Description,
			CreatedAt:   e.Transaction.CreatedAt.Format(time.RFC3339),
		},
		Balance: e.Balance,
	}
}
