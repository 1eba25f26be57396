package repository

import (
	"tutorbook/database"
	bookingRepo "tutorbook/database/repository/booking"
	escrowRepo "tutorbook/database/repository/escrow"
	paymentRepo "tutorbook/database/repository/payment"
	slotRepo "tutorbook/database/repository/slot"
	withdrawalRepo "tutorbook/database/repository/withdrawal"
)

// Re-export the repository interfaces.
type (
	SlotRepository       = slotRepo.SlotRepository
	BookingRepository    = bookingRepo.BookingRepository
	PaymentRepository    = paymentRepo.PaymentRepository
	EscrowRepository     = escrowRepo.EscrowRepository
	WithdrawalRepository = withdrawalRepo.WithdrawalRepository
)

// Store bundles every repository with the transaction runner they share.
type Store struct {
	Tx          database.TxRunner
	Slots       SlotRepository
	Bookings    BookingRepository
	Payments    PaymentRepository
	Escrow      EscrowRepository
	Withdrawals WithdrawalRepository
}

// NewMongoStore builds the Mongo-backed store. database.InitDB must have run.
func NewMongoStore() *Store {
	return &Store{
		Tx:          database.NewMongoTxRunner(),
		Slots:       slotRepo.NewMongoSlotRepo(),
		Bookings:    bookingRepo.NewMongoBookingRepo(),
		Payments:    paymentRepo.NewMongoPaymentRepo(),
		Escrow:      escrowRepo.NewMongoEscrowRepo(),
		Withdrawals: withdrawalRepo.NewMongoWithdrawalRepo(),
	}
}

// EnsureIndexes creates the indexes of every Mongo repository in s.
func (s *Store) EnsureIndexes() error {
	if err := slotRepo.EnsureIndexes(s.Slots); err != nil {
		return err
	}
	if err := bookingRepo.EnsureIndexes(s.Bookings); err != nil {
		return err
	}
	if err := paymentRepo.EnsureIndexes(s.Payments); err != nil {
		return err
	}
	if err := escrowRepo.EnsureIndexes(s.Escrow); err != nil {
		return err
	}
	return withdrawalRepo.EnsureIndexes(s.Withdrawals)
}
