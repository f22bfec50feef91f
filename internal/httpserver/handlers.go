package httpserver

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxNotificationBytes = 64 << 10

type Handler struct {
	ledger *api.LedgerService
}

func NewHandler(ledger *api.LedgerService) *Handler {
	return &Handler{ledger: ledger}
}

// requestContext tags the request context so published events can be correlated
func requestContext(c *gin.Context, source string) context.Context {
	actor := userIdFromContext(c)
	if source == "webhook" {
		actor = "provider"
	}
	return models.WithRequestMeta(c.Request.Context(), &models.RequestMeta{
		RequestId: requestIdFromContext(c),
		ActorId:   actor,
		Source:    source,
	})
}

func pageFromQuery(c *gin.Context) (models.Page, error) {
	page, limit := 0, 0
	var err error
	if v := c.Query("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return models.Page{}, store.NewValidationError("invalid paging", map[string]string{"page": "must be an integer"})
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return models.Page{}, store.NewValidationError("invalid paging", map[string]string{"limit": "must be an integer"})
		}
	}
	return api.NormalizePage(page, limit), nil
}

// ---------- deposits ----------

func (h *Handler) CreateDeposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	summary, err := h.ledger.RequestDeposit(requestContext(c, "api"), userIdFromContext(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *Handler) GetDepositByOrder(c *gin.Context) {
	summary, err := h.ledger.GetDepositByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListDeposits(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	status := models.PaymentStatus(c.Query("status"))
	result, err := h.ledger.ListDeposits(c.Request.Context(), userIdFromContext(c), status, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) PaymentStatus(c *gin.Context) {
	summary, err := h.ledger.SyncPaymentStatus(requestContext(c, "api"), userIdFromContext(c), c.Param("paymentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) Currencies(c *gin.Context) {
	currencies, err := h.ledger.Currencies(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currencies": currencies})
}

func (h *Handler) MinAmount(c *gin.Context) {
	minimum, err := h.ledger.MinAmount(c.Request.Context(), c.Param("currency"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, minimum)
}

func (h *Handler) Estimate(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		writeError(c, store.NewValidationError("invalid estimate request", map[string]string{"amount": "must be a number"}))
		return
	}
	estimate, err := h.ledger.Estimate(c.Request.Context(), amount, c.Query("currency"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// Notification handles the provider callback. The raw body is kept for signature verification.
func (h *Handler) Notification(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "unreadable body", nil)
		return
	}

	outcome, err := h.ledger.HandleNotification(requestContext(c, "webhook"), body, c.GetHeader(nowpayments.SignatureHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome.Result})
}

// ---------- balance ----------

func (h *Handler) Balance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), userIdFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) Transactions(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.ledger.GetTransactionHistory(c.Request.Context(), userIdFromContext(c), models.EntryKind(c.Query("type")), page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ---------- withdrawals ----------

func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req models.WithdrawalCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	summary, err := h.ledger.RequestWithdrawal(requestContext(c, "api"), userIdFromContext(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *Handler) MyWithdrawals(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	status := models.WithdrawalStatus(c.Query("status"))
	result, err := h.ledger.ListWithdrawals(c.Request.Context(), userIdFromContext(c), status, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) WithdrawalStats(c *gin.Context) {
	stats, err := h.ledger.WithdrawalStats(c.Request.Context(), userIdFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	summary, err := h.ledger.GetWithdrawal(c.Request.Context(), c.Param("id"), userIdFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) CancelWithdrawal(c *gin.Context) {
	summary, err := h.ledger.CancelWithdrawal(requestContext(c, "api"), c.Param("id"), userIdFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	var req models.WithdrawalProcess
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	summary, err := h.ledger.FinalizeWithdrawal(requestContext(c, "api"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ---------- operators ----------

func (h *Handler) Reconciliation(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, store.NewValidationError("invalid limit", map[string]string{"limit": "must be a positive integer"}))
			return
		}
		limit = n
	}
	issues, err := h.ledger.ListOpenIssues(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}
