package models

import "time"

// Policy carries the marketplace's money and timing rules.
type Policy struct {
	Currency             string
	PlatformFeeBps       int64 // basis points of gross kept by the platform
	CancelWindow         time.Duration
	PartialRefundPercent int64
	PaymentTimeout       time.Duration
	CompletionGrace      time.Duration
	DisputeWindow        time.Duration
	MinWithdrawal        int64
	ListHorizon          time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Currency:             "vnd",
		PlatformFeeBps:       1000,
		CancelWindow:         24 * time.Hour,
		PartialRefundPercent: 50,
		PaymentTimeout:       15 * time.Minute,
		CompletionGrace:      24 * time.Hour,
		DisputeWindow:        24 * time.Hour,
		MinWithdrawal:        50000,
		ListHorizon:          60 * 24 * time.Hour,
	}
}

// Normalized caps DisputeWindow at CompletionGrace. Auto-release settles the
// payment at end+CompletionGrace, after which nothing is left to dispute.
func (p Policy) Normalized() Policy {
	if p.DisputeWindow > p.CompletionGrace {
		p.DisputeWindow = p.CompletionGrace
	}
	return p
}
