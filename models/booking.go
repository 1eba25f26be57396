package models

import "time"

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusAccepted   BookingStatus = "accepted"
	StatusRejected   BookingStatus = "rejected"
	StatusCancelled  BookingStatus = "cancelled"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusDisputed   BookingStatus = "disputed"
)

type PaymentStatus string

const (
	PaymentEscrow   PaymentStatus = "escrow"
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
)

// BookingState is the (status, paymentStatus) pair a booking sits in.
type BookingState struct {
	Status  BookingStatus `bson:"status" json:"status"`
	Payment PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
}

func (s BookingState) String() string {
	return string(s.Status) + "/" + string(s.Payment)
}

type Actor string

const (
	ActorLearner  Actor = "learner"
	ActorTutor    Actor = "tutor"
	ActorOperator Actor = "operator"
	ActorSystem   Actor = "system"
	ActorProvider Actor = "provider"
)

type TargetKind string

const (
	TargetSlot  TargetKind = "slot"
	TargetAdHoc TargetKind = "adhoc"
)

// BookingTarget is a tagged variant: either a slot occurrence or an ad-hoc
// range carved out of a tutor's availability rule. Kind decides which
// fields are meaningful.
type BookingTarget struct {
	Kind            TargetKind `bson:"kind" json:"kind"`
	SlotID          string     `bson:"slotId,omitempty" json:"slotId,omitempty"`
	OccurrenceStart time.Time  `bson:"occurrenceStart,omitempty" json:"occurrenceStart,omitzero"`
	TutorID         string     `bson:"tutorId,omitempty" json:"tutorId,omitempty"`
	RuleID          string     `bson:"ruleId,omitempty" json:"ruleId,omitempty"`
	Start           time.Time  `bson:"start,omitempty" json:"start,omitzero"`
	End             time.Time  `bson:"end,omitempty" json:"end,omitzero"`
}

func SlotTarget(slotID string, occurrenceStart time.Time) BookingTarget {
	return BookingTarget{Kind: TargetSlot, SlotID: slotID, OccurrenceStart: occurrenceStart}
}

func AdHocTarget(tutorID string, start, end time.Time) BookingTarget {
	return BookingTarget{Kind: TargetAdHoc, TutorID: tutorID, Start: start, End: end}
}

// Booking is one learner's claim on a slot occurrence or an ad-hoc range.
type Booking struct {
	ID              string             `bson:"id" json:"id"`
	LearnerID       string             `bson:"learnerId" json:"learnerId"`
	TutorID         string             `bson:"tutorId" json:"tutorId"`
	Target          BookingTarget      `bson:"target" json:"target"`
	Start           time.Time          `bson:"start" json:"start"`
	End             time.Time          `bson:"end" json:"end"`
	Mode            TeachingMode       `bson:"mode" json:"mode"`
	Price           int64              `bson:"price" json:"price"`
	Status          BookingStatus      `bson:"status" json:"status"`
	PaymentStatus   PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	RoomID          string             `bson:"roomId,omitempty" json:"roomId,omitempty"`
	DisputeReason   string             `bson:"disputeReason,omitempty" json:"disputeReason,omitempty"`
	CancelReason    string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CancelledBy     Actor              `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	PreAccepted     bool               `bson:"preAccepted" json:"preAccepted"`
	RefundAmount    int64              `bson:"refundAmount" json:"refundAmount"`
	Reservations    []string           `bson:"reservations" json:"reservations"`
	OrderCode       string             `bson:"orderCode,omitempty" json:"orderCode,omitempty"`
	EscrowEntryID   string             `bson:"escrowEntryId,omitempty" json:"escrowEntryId,omitempty"`
	PaymentDeadline time.Time          `bson:"paymentDeadline" json:"paymentDeadline"`
	CompletedAt     *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	History         []TransitionRecord `bson:"history" json:"history"`
	Version         int                `bson:"version" json:"version"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (b *Booking) State() BookingState {
	return BookingState{Status: b.Status, Payment: b.PaymentStatus}
}

// HasApplied reports whether a transition with the given idempotency key is
// already part of the booking's history.
func (b *Booking) HasApplied(key string) bool {
	for _, h := range b.History {
		if h.Key == key {
			return true
		}
	}
	return false
}

// Reached reports whether the booking already moved into its current state
// through event, which makes a redelivered event a no-op.
func (b *Booking) Reached(event string) bool {
	cur := b.State()
	for _, h := range b.History {
		if h.Event == event && h.To == cur {
			return true
		}
	}
	return false
}

// TransitionRecord is one audited step of a booking's lifecycle.
type TransitionRecord struct {
	Key    string       `bson:"key" json:"key"`
	Event  string       `bson:"event" json:"event"`
	From   BookingState `bson:"from" json:"from"`
	To     BookingState `bson:"to" json:"to"`
	Actor  Actor        `bson:"actor" json:"actor"`
	Reason string       `bson:"reason,omitempty" json:"reason,omitempty"`
	At     time.Time    `bson:"at" json:"at"`
}
