package handlers

import (
	"net/http"

	"tutorbook/services/booking"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BookingHandler struct {
	Service booking.BookingService
}

func NewBookingHandler(svc booking.BookingService) *BookingHandler {
	return &BookingHandler{Service: svc}
}

// CreateBookingHandler books a slot occurrence or an ad-hoc range for the
// authenticated learner and returns the payment link.
func (h *BookingHandler) CreateBookingHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var in booking.CreateBookingInput
	if !bindJSON(c, &in) {
		return
	}
	in.LearnerID = caller.ID

	res, err := h.Service.CreateBooking(c.Request.Context(), in)
	if err != nil {
		getLogger(c).Warn("Booking creation failed", zap.String("learnerId", caller.ID), zap.Error(err))
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *BookingHandler) GetBookingHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	b, err := h.Service.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) ListBookingsHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	list, err := h.Service.List(c.Request.Context(), caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

type decisionRequest struct {
	Accept *bool  `json:"accept" binding:"required"`
	Reason string `json:"reason"`
}

// DecideHandler is the tutor's accept or reject.
func (h *BookingHandler) DecideHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.Service.Decide(c.Request.Context(), caller.ID, c.Param("id"), *req.Accept, req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) CancelHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	b, err := h.Service.Cancel(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) MarkCompleteHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	b, err := h.Service.MarkComplete(c.Request.Context(), caller.ID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) ConfirmCompletionHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	b, err := h.Service.ConfirmCompletion(c.Request.Context(), caller.ID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) DisputeHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.Service.Dispute(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
