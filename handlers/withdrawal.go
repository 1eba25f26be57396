package handlers

import (
	"net/http"

	"tutorbook/services/withdrawal"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
)

type WithdrawalHandler struct {
	Processor withdrawal.Processor
}

func NewWithdrawalHandler(p withdrawal.Processor) *WithdrawalHandler {
	return &WithdrawalHandler{Processor: p}
}

type withdrawalRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (h *WithdrawalHandler) RequestWithdrawalHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req withdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.Processor.RequestWithdrawal(c.Request.Context(), caller.ID, req.Amount)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *WithdrawalHandler) ListWithdrawalsHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	list, err := h.Processor.ListByTutor(c.Request.Context(), caller.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *WithdrawalHandler) CancelWithdrawalHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	w, err := h.Processor.Cancel(c.Request.Context(), caller.ID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
