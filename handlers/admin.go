package handlers

import (
	"net/http"

	"tutorbook/models"
	"tutorbook/services/booking"
	"tutorbook/services/escrow"
	"tutorbook/services/withdrawal"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates operator-level operations.
type AdminHandler struct {
	Bookings    booking.BookingService
	Ledger      escrow.Ledger
	Withdrawals withdrawal.Processor
}

func NewAdminHandler(bookings booking.BookingService, ledger escrow.Ledger, withdrawals withdrawal.Processor) *AdminHandler {
	return &AdminHandler{Bookings: bookings, Ledger: ledger, Withdrawals: withdrawals}
}

type resolveRequest struct {
	Outcome booking.Resolution `json:"outcome" binding:"required"`
	Note    string             `json:"note"`
}

func (ah *AdminHandler) ResolveDisputeHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req resolveRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := ah.Bookings.ResolveDispute(c.Request.Context(), caller.ID, c.Param("id"), req.Outcome, req.Note)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ReconcileHandler compares one tutor's stored balance with their entries.
func (ah *AdminHandler) ReconcileHandler(c *gin.Context) {
	report, err := ah.Ledger.Reconcile(c.Request.Context(), c.Param("tutorId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ah *AdminHandler) ReconcileAllHandler(c *gin.Context) {
	reports, err := ah.Ledger.ReconcileAll(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to reconcile balances", zap.Error(err))
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// SweepHandler runs the lifecycle sweep now instead of waiting for the schedule.
func (ah *AdminHandler) SweepHandler(c *gin.Context) {
	report, err := ah.Bookings.SweepDue(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ah *AdminHandler) ListWithdrawalsHandler(c *gin.Context) {
	status := models.WithdrawalStatus(c.DefaultQuery("status", string(models.WithdrawalPending)))
	list, err := ah.Withdrawals.ListByStatus(c.Request.Context(), status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (ah *AdminHandler) MarkWithdrawalProcessingHandler(c *gin.Context) {
	w, err := ah.Withdrawals.MarkProcessing(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type completeWithdrawalRequest struct {
	PayoutRef string `json:"payoutRef" binding:"required"`
}

func (ah *AdminHandler) CompleteWithdrawalHandler(c *gin.Context) {
	var req completeWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := ah.Withdrawals.Complete(c.Request.Context(), c.Param("id"), req.PayoutRef)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (ah *AdminHandler) FailWithdrawalHandler(c *gin.Context) {
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := ah.Withdrawals.Fail(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
