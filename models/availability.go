package models

import "time"

// AvailabilityRule opens a weekly window split into fixed-length cells.
// Every cell is a capacity-1 unit that ad-hoc bookings reserve directly.
type AvailabilityRule struct {
	ID           string         `bson:"id" json:"id"`
	TutorID      string         `bson:"tutorId" json:"tutorId"`
	Weekday      time.Weekday   `bson:"weekday" json:"weekday"`
	StartMinute  int            `bson:"startMinute" json:"startMinute"` // minutes from midnight, UTC
	EndMinute    int            `bson:"endMinute" json:"endMinute"`
	CellMinutes  int            `bson:"cellMinutes" json:"cellMinutes"`
	PricePerCell int64          `bson:"pricePerCell" json:"pricePerCell"`
	Mode         TeachingMode   `bson:"mode" json:"mode"`
	Overrides    []CellOverride `bson:"overrides,omitempty" json:"overrides,omitempty"`
	Active       bool           `bson:"active" json:"active"`
	Version      int            `bson:"version" json:"version"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
}

// CellOverride changes a single dated cell of a rule.
type CellOverride struct {
	Date        string `bson:"date" json:"date"` // "2006-01-02"
	StartMinute int    `bson:"startMinute" json:"startMinute"`
	Blocked     bool   `bson:"blocked" json:"blocked"`
	Price       *int64 `bson:"price,omitempty" json:"price,omitempty"`
}

// Cell is one expanded unit of an availability rule on a concrete date.
type Cell struct {
	RuleID string    `json:"ruleId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Price  int64     `json:"price"`
}
