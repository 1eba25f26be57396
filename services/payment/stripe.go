package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Checkout sessions must live at least this long.
const stripeMinExpiry = 31 * time.Minute

// StripeProvider uses hosted Checkout Sessions. stripe.Key must be set.
type StripeProvider struct {
	WebhookSecret string
	Now           func() time.Time
}

func NewStripeProvider(webhookSecret string) *StripeProvider {
	return &StripeProvider{WebhookSecret: webhookSecret, Now: time.Now}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*ProviderLink, error) {
	expires := req.ExpiresAt
	if floor := p.Now().Add(stripeMinExpiry); expires.Before(floor) {
		// Our own expiry task closes the session earlier.
		expires = floor
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURL + "?orderCode=" + req.OrderCode),
		CancelURL:         stripe.String(req.CancelURL + "?orderCode=" + req.OrderCode),
		ClientReferenceID: stripe.String(req.OrderCode),
		ExpiresAt:         stripe.Int64(expires.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("order_code", req.OrderCode)

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &ProviderLink{Reference: s.ID, RedirectURL: s.URL}, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*models.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &utils.VerificationError{Reason: err.Error()}
	}

	var status models.ProviderStatus
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = models.ProviderPaid
	case "checkout.session.expired":
		status = models.ProviderExpired
	case "checkout.session.async_payment_failed":
		status = models.ProviderCancelled
	default:
		return nil, fmt.Errorf("%w: stripe %s", ErrIgnoredEvent, event.Type)
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, &utils.VerificationError{Reason: "malformed checkout session: " + err.Error()}
	}
	// A completed session paid by a delayed method is not paid yet.
	if status == models.ProviderPaid && s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		status = models.ProviderPending
	}
	orderCode := s.Metadata["order_code"]
	if orderCode == "" {
		orderCode = s.ClientReferenceID
	}
	return &models.ProviderEvent{
		OrderCode:  orderCode,
		Status:     status,
		Amount:     s.AmountTotal,
		Reference:  s.ID,
		Raw:        string(payload),
		ReceivedAt: p.Now().UTC(),
	}, nil
}

func (p *StripeProvider) FetchStatus(ctx context.Context, orderCode, reference string) (*models.ProviderEvent, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("stripe session get: %w", err)
	}
	status := models.ProviderPending
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		status = models.ProviderPaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		status = models.ProviderExpired
	}
	raw, _ := json.Marshal(s)
	return &models.ProviderEvent{
		OrderCode:  orderCode,
		Status:     status,
		Amount:     s.AmountTotal,
		Reference:  s.ID,
		Raw:        string(raw),
		ReceivedAt: p.Now().UTC(),
	}, nil
}

func (p *StripeProvider) Cancel(ctx context.Context, _ string, reference string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := session.Expire(reference, params); err != nil {
		return fmt.Errorf("stripe session expire: %w", err)
	}
	return nil
}
