package handlers

import (
	"errors"
	"io"
	"net/http"

	paymentRepo "tutorbook/database/repository/payment"
	"tutorbook/services/booking"
	"tutorbook/services/payment"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// Header names providers sign their callbacks with, in lookup order.
var signatureHeaders = []string{"Stripe-Signature", "X-Signature"}

type PaymentHandler struct {
	Gateway  payment.Gateway
	Bookings booking.BookingService
	Payments paymentRepo.PaymentRepository
}

func NewPaymentHandler(gw payment.Gateway, bookings booking.BookingService, payments paymentRepo.PaymentRepository) *PaymentHandler {
	return &PaymentHandler{Gateway: gw, Bookings: bookings, Payments: payments}
}

// WebhookHandler receives provider callbacks. A delivery that fails
// verification is answered 401 and never reaches the booking.
func (h *PaymentHandler) WebhookHandler(c *gin.Context) {
	logger := getLogger(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, utils.KindValidation, "unreadable body")
		return
	}
	var signature string
	for _, name := range signatureHeaders {
		if signature = c.GetHeader(name); signature != "" {
			break
		}
	}

	ev, err := h.Gateway.HandleWebhook(c.Request.Context(), body, signature)
	if errors.Is(err, payment.ErrIgnoredEvent) {
		c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	b, err := h.Bookings.ApplyPaymentEvent(c.Request.Context(), ev)
	if err != nil {
		// Non-2xx makes the provider redeliver.
		logger.Error("Payment event not applied",
			zap.String("orderCode", ev.OrderCode),
			zap.String("bookingId", ev.BookingID),
			zap.Error(err))
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": ev.Duplicate, "state": b.State()})
}

// VerifyHandler polls the provider for an order on behalf of its booking's
// learner, tutor or an operator.
func (h *PaymentHandler) VerifyHandler(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	b, err := h.Bookings.VerifyPayment(c.Request.Context(), caller, c.Param("orderCode"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ReturnHandler is where the provider redirects the learner. It only
// reports what is already recorded; the webhook or a verify poll moves
// the booking.
func (h *PaymentHandler) ReturnHandler(c *gin.Context) {
	orderCode := c.Query("orderCode")
	if orderCode == "" {
		utils.JSONError(c, http.StatusBadRequest, utils.KindValidation, "orderCode is required")
		return
	}
	rec, err := h.Payments.GetByOrderCode(c.Request.Context(), orderCode)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderCode": rec.OrderCode, "status": rec.Status, "bookingId": rec.BookingID})
}
