package handlers

import "github.com/gin-gonic/gin"

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Public endpoints
	ListOpenSlotsHandler gin.HandlerFunc
	ListCellsHandler     gin.HandlerFunc

	// Tutor slot and availability endpoints
	CreateSlotHandler      gin.HandlerFunc
	CancelSlotHandler      gin.HandlerFunc
	CreateRuleHandler      gin.HandlerFunc
	SetCellOverrideHandler gin.HandlerFunc

	// Booking endpoints
	CreateBookingHandler     gin.HandlerFunc
	GetBookingHandler        gin.HandlerFunc
	ListBookingsHandler      gin.HandlerFunc
	DecideHandler            gin.HandlerFunc
	CancelBookingHandler     gin.HandlerFunc
	MarkCompleteHandler      gin.HandlerFunc
	ConfirmCompletionHandler gin.HandlerFunc
	DisputeHandler           gin.HandlerFunc

	// Payment endpoints
	WebhookHandler       gin.HandlerFunc
	VerifyPaymentHandler gin.HandlerFunc
	PaymentReturnHandler gin.HandlerFunc

	// Tutor money endpoints
	GetBalanceHandler        gin.HandlerFunc
	ListEntriesHandler       gin.HandlerFunc
	RequestWithdrawalHandler gin.HandlerFunc
	ListWithdrawalsHandler   gin.HandlerFunc
	CancelWithdrawalHandler  gin.HandlerFunc

	// Operator endpoints
	AdminHandler *AdminHandler
}

// NewHandlerBundle wires every handler struct into the bundle.
func NewHandlerBundle(slots *SlotHandler, bookings *BookingHandler, payments *PaymentHandler, escrow *EscrowHandler, withdrawals *WithdrawalHandler, admin *AdminHandler) *HandlerBundle {
	return &HandlerBundle{
		ListOpenSlotsHandler: slots.ListOpenSlotsHandler,
		ListCellsHandler:     slots.ListCellsHandler,

		CreateSlotHandler:      slots.CreateSlotHandler,
		CancelSlotHandler:      slots.CancelSlotHandler,
		CreateRuleHandler:      slots.CreateRuleHandler,
		SetCellOverrideHandler: slots.SetCellOverrideHandler,

		CreateBookingHandler:     bookings.CreateBookingHandler,
		GetBookingHandler:        bookings.GetBookingHandler,
		ListBookingsHandler:      bookings.ListBookingsHandler,
		DecideHandler:            bookings.DecideHandler,
		CancelBookingHandler:     bookings.CancelHandler,
		MarkCompleteHandler:      bookings.MarkCompleteHandler,
		ConfirmCompletionHandler: bookings.ConfirmCompletionHandler,
		DisputeHandler:           bookings.DisputeHandler,

		WebhookHandler:       payments.WebhookHandler,
		VerifyPaymentHandler: payments.VerifyHandler,
		PaymentReturnHandler: payments.ReturnHandler,

		GetBalanceHandler:        escrow.GetBalanceHandler,
		ListEntriesHandler:       escrow.ListEntriesHandler,
		RequestWithdrawalHandler: withdrawals.RequestWithdrawalHandler,
		ListWithdrawalsHandler:   withdrawals.ListWithdrawalsHandler,
		CancelWithdrawalHandler:  withdrawals.CancelWithdrawalHandler,

		AdminHandler: admin,
	}
}
