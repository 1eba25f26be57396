package handlers

import (
	"net/http"

	"tutorbook/models"
	"tutorbook/services/slots"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxListedOccurrences = 200

type SlotHandler struct {
	Service slots.SlotService
}

func NewSlotHandler(svc slots.SlotService) *SlotHandler {
	return &SlotHandler{Service: svc}
}

// CreateSlotHandler publishes a slot for the authenticated tutor.
func (h *SlotHandler) CreateSlotHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var in slots.CreateSlotInput
	if !bindJSON(c, &in) {
		return
	}
	in.TutorID = caller.ID

	slot, err := h.Service.CreateSlot(c.Request.Context(), in)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *SlotHandler) CancelSlotHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	slot, err := h.Service.CancelSlot(c.Request.Context(), caller.ID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// ListOpenSlotsHandler lists bookable occurrences. Query: tutorId, mode,
// from, to (RFC3339) and limit.
func (h *SlotHandler) ListOpenSlotsHandler(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	limit := min(queryInt(c, "limit", 50), maxListedOccurrences)

	filter := models.SlotFilter{
		TutorID: c.Query("tutorId"),
		Mode:    models.TeachingMode(c.Query("mode")),
		From:    from,
		To:      to,
	}
	occurrences := make([]models.Occurrence, 0, limit)
	for occ, err := range h.Service.ListOpenSlots(c.Request.Context(), filter) {
		if err != nil {
			getLogger(c).Error("Failed to list open slots", zap.Error(err))
			utils.RespondError(c, err)
			return
		}
		occurrences = append(occurrences, occ)
		if len(occurrences) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

func (h *SlotHandler) CreateRuleHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var in slots.RuleInput
	if !bindJSON(c, &in) {
		return
	}
	in.TutorID = caller.ID

	rule, err := h.Service.CreateAvailabilityRule(c.Request.Context(), in)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *SlotHandler) SetCellOverrideHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var o models.CellOverride
	if !bindJSON(c, &o) {
		return
	}
	rule, err := h.Service.SetCellOverride(c.Request.Context(), caller.ID, c.Param("id"), o)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ListCellsHandler lists a tutor's open availability cells between from and to.
func (h *SlotHandler) ListCellsHandler(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	cells, err := h.Service.ListCells(c.Request.Context(), c.Param("tutorId"), from, to)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cells": cells})
}
