package models

import "time"

type TeachingMode string

const (
	ModeOnline  TeachingMode = "online"
	ModeOffline TeachingMode = "offline"
)

type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotFull      SlotStatus = "full"
	SlotCancelled SlotStatus = "cancelled"
)

// TeachingSlot is a tutor-defined bookable window. A slot with a Recurrence
// stands for every weekly occurrence up to Recurrence.Until.
type TeachingSlot struct {
	ID         string       `bson:"id" json:"id"`
	TutorID    string       `bson:"tutorId" json:"tutorId"`
	Start      time.Time    `bson:"start" json:"start"`
	End        time.Time    `bson:"end" json:"end"`
	Mode       TeachingMode `bson:"mode" json:"mode"`
	Price      int64        `bson:"price" json:"price"`
	Capacity   int          `bson:"capacity" json:"capacity"`
	Status     SlotStatus   `bson:"status" json:"status"`
	Recurrence *Recurrence  `bson:"recurrence,omitempty" json:"recurrence,omitempty"`
	Version    int          `bson:"version" json:"version"`
	CreatedAt  time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// Recurrence repeats a slot weekly on the listed weekdays, keeping the
// original time of day and duration.
type Recurrence struct {
	Weekdays []time.Weekday `bson:"weekdays" json:"weekdays"`
	Until    time.Time      `bson:"until" json:"until"`
}

func (s TeachingSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Occurrence is one concrete, independently reservable instance of a slot
// or of an availability-rule cell. Reserved counts live capacity holds.
type Occurrence struct {
	Key      string       `bson:"key" json:"key"`
	OwnerID  string       `bson:"ownerId" json:"ownerId"` // slot id or rule id
	TutorID  string       `bson:"tutorId" json:"tutorId"`
	Start    time.Time    `bson:"start" json:"start"`
	End      time.Time    `bson:"end" json:"end"`
	Mode     TeachingMode `bson:"mode" json:"mode"`
	Price    int64        `bson:"price" json:"price"`
	Capacity int          `bson:"capacity" json:"capacity"`
	Reserved int          `bson:"reserved" json:"reserved"`
	Status   SlotStatus   `bson:"status" json:"status"`
}

func (o Occurrence) Remaining() int {
	if o.Reserved >= o.Capacity {
		return 0
	}
	return o.Capacity - o.Reserved
}

// Reservation is the receipt for one unit of held capacity.
type Reservation struct {
	OccurrenceKey string    `json:"occurrenceKey"`
	OwnerID       string    `json:"ownerId"`
	Start         time.Time `json:"start"`
	Remaining     int       `json:"remaining"`
}

// SlotFilter narrows listOpenSlots. From/To bound the expansion window.
type SlotFilter struct {
	TutorID string
	Mode    TeachingMode
	From    time.Time
	To      time.Time
}

func OccurrenceKey(ownerID string, start time.Time) string {
	return ownerID + "@" + start.UTC().Format(time.RFC3339)
}
