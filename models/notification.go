package models

import "time"

type EventType string

const (
	EventBookingCreated   EventType = "booking_created"
	EventBookingAccepted  EventType = "booking_accepted"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventBookingCompleted EventType = "booking_completed"
	EventBookingCancelled EventType = "booking_cancelled"
	EventBookingRejected  EventType = "booking_rejected"
	EventBookingDisputed  EventType = "booking_disputed"
	EventWithdrawal       EventType = "withdrawal_updated"
)

// DomainEvent is the fire-and-forget notice handed to the notification
// collaborator.
type DomainEvent struct {
	Type       EventType         `json:"type"`
	BookingID  string            `json:"bookingId,omitempty"`
	LearnerID  string            `json:"learnerId,omitempty"`
	TutorID    string            `json:"tutorId,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// TaskPayload is the body of a delayed lifecycle task.
type TaskPayload struct {
	BookingID string    `json:"bookingId"`
	FireAt    time.Time `json:"fireAt"`
}
