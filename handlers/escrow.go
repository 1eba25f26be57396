package handlers

import (
	"net/http"

	"tutorbook/services/escrow"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
)

type EscrowHandler struct {
	Ledger escrow.Ledger
}

func NewEscrowHandler(l escrow.Ledger) *EscrowHandler {
	return &EscrowHandler{Ledger: l}
}

// GetBalanceHandler returns the authenticated tutor's balance.
func (h *EscrowHandler) GetBalanceHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	bal, err := h.Ledger.GetBalance(c.Request.Context(), caller.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h *EscrowHandler) ListEntriesHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	entries, err := h.Ledger.ListEntries(c.Request.Context(), caller.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
