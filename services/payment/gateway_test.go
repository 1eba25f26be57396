package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tutorbook/database/memstore"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const testKey = "checksum-key"

func newTestGateway(t *testing.T) (*DefaultGateway, *SandboxProvider) {
	t.Helper()
	store := memstore.NewStore()
	sbx := NewSandboxProvider(testKey, "http://pay.local")
	return NewGateway(sbx, store.Payments, &MemorySeenCache{}, "vnd", "http://app/return", "http://app/cancel", zap.NewNop()), sbx
}

func seedRecord(t *testing.T, g *DefaultGateway, orderCode string, amount int64) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b := &models.Booking{ID: "b-" + orderCode, OrderCode: orderCode, Price: amount, Start: time.Now().Add(48 * time.Hour)}
	require.NoError(t, g.Payments.Create(ctx, &models.PaymentRecord{
		ID: "p-" + orderCode, OrderCode: orderCode, BookingID: b.ID, Amount: amount, Status: models.ProviderPending,
	}))
	_, err := g.CreatePaymentLink(ctx, b, time.Now().Add(15*time.Minute))
	require.NoError(t, err)
	return b
}

func TestOrderCodesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 1000 {
		code, err := NewOrderCode()
		require.NoError(t, err)
		assert.Len(t, code, 24)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestSignIsOrderIndependent(t *testing.T) {
	a := Sign(testKey, map[string]any{"b": "2", "a": "1", "c": json.Number("3")})
	b := Sign(testKey, map[string]any{"c": int64(3), "a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("other", map[string]any{"a": "1", "b": "2", "c": "3"}))
}

func TestHandleWebhookVerifiesBeforeTrusting(t *testing.T) {
	g, sbx := newTestGateway(t)
	ctx := context.Background()
	seedRecord(t, g, "order1", 200000)

	body, err := sbx.Settle("order1", models.ProviderPaid)
	require.NoError(t, err)

	tampered := strings.Replace(string(body), `"PAID"`, `"EXPIRED"`, 1)
	_, err = g.HandleWebhook(ctx, []byte(tampered), "")
	assert.True(t, utils.IsKind(err, utils.KindVerification))

	_, err = g.HandleWebhook(ctx, body, "deadbeef")
	assert.True(t, utils.IsKind(err, utils.KindVerification), "header signature must match")

	_, err = g.HandleWebhook(ctx, []byte("not json"), "")
	assert.True(t, utils.IsKind(err, utils.KindVerification))

	rec, err := g.Payments.GetByOrderCode(ctx, "order1")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPending, rec.Status)

	ev, err := g.HandleWebhook(ctx, body, "")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPaid, ev.Status)
	assert.Equal(t, "b-order1", ev.BookingID)
	assert.False(t, ev.Duplicate)

	g.MarkApplied(ctx, ev)
	again, err := g.HandleWebhook(ctx, body, "")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
}

func TestHandleWebhookRejectsMismatches(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	seedRecord(t, g, "order2", 200000)

	wrongAmount, err := SignedWebhook(testKey, "order2", models.ProviderPaid, 1000)
	require.NoError(t, err)
	_, err = g.HandleWebhook(ctx, wrongAmount, "")
	assert.True(t, utils.IsKind(err, utils.KindVerification))

	unknown, err := SignedWebhook(testKey, "nope", models.ProviderPaid, 200000)
	require.NoError(t, err)
	_, err = g.HandleWebhook(ctx, unknown, "")
	assert.True(t, utils.IsKind(err, utils.KindVerification))
}

func TestVerifyByOrderCodePolls(t *testing.T) {
	g, sbx := newTestGateway(t)
	ctx := context.Background()
	seedRecord(t, g, "order3", 50000)

	ev, err := g.VerifyByOrderCode(ctx, "order3")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPending, ev.Status)

	_, err = sbx.Settle("order3", models.ProviderPaid)
	require.NoError(t, err)
	ev, err = g.VerifyByOrderCode(ctx, "order3")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPaid, ev.Status)
}

func TestHMACProviderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payment-requests":
			var data map[string]any
			dec := json.NewDecoder(r.Body)
			dec.UseNumber()
			require.NoError(t, dec.Decode(&data))
			sig, _ := data["signature"].(string)
			delete(data, "signature")
			if Sign(testKey, data) != sig {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": "00",
				"data": map[string]string{"checkoutUrl": "https://checkout/xyz", "paymentLinkId": "pl_1"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/payment-requests/order4":
			body, _ := SignedWebhook(testKey, "order4", models.ProviderPaid, 75000)
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHMACProvider(srv.URL+"/", testKey)
	ctx := context.Background()
	link, err := p.CreatePaymentLink(ctx, LinkRequest{OrderCode: "order4", Amount: 75000, Currency: "vnd", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "pl_1", link.Reference)
	assert.Equal(t, "https://checkout/xyz", link.RedirectURL)

	ev, err := p.FetchStatus(ctx, "order4", link.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPaid, ev.Status)
	assert.Equal(t, int64(75000), ev.Amount)

	assert.Error(t, p.Cancel(ctx, "order4", ""))
}

func stripeEvent(t *testing.T, secret, eventType string, session map[string]any) (payload []byte, header string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return signed.Payload, signed.Header
}

func TestStripeWebhooks(t *testing.T) {
	const secret = "whsec_test"
	ctx := context.Background()
	store := memstore.NewStore()
	g := NewGateway(NewStripeProvider(secret), store.Payments, &MemorySeenCache{}, "vnd", "", "", zap.NewNop())
	require.NoError(t, store.Payments.Create(ctx, &models.PaymentRecord{
		ID: "p-order4", OrderCode: "order4", BookingID: "b-order4", Amount: 200000, Status: models.ProviderPending,
	}))
	session := func(paymentStatus string) map[string]any {
		return map[string]any{
			"id":                  "cs_test",
			"object":              "checkout.session",
			"payment_status":      paymentStatus,
			"amount_total":        200000,
			"client_reference_id": "order4",
			"metadata":            map[string]any{"order_code": "order4"},
		}
	}

	t.Run("completed and paid", func(t *testing.T) {
		payload, header := stripeEvent(t, secret, "checkout.session.completed", session("paid"))
		ev, err := g.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, models.ProviderPaid, ev.Status)
		assert.Equal(t, "b-order4", ev.BookingID)
	})

	t.Run("completed but not yet paid", func(t *testing.T) {
		payload, header := stripeEvent(t, secret, "checkout.session.completed", session("unpaid"))
		ev, err := g.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, models.ProviderPending, ev.Status)
		assert.True(t, ev.Duplicate)
	})

	t.Run("unrelated event type", func(t *testing.T) {
		payload, header := stripeEvent(t, secret, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
		_, err := g.HandleWebhook(ctx, payload, header)
		assert.ErrorIs(t, err, ErrIgnoredEvent)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload, _ := stripeEvent(t, secret, "checkout.session.completed", session("paid"))
		_, header := stripeEvent(t, "whsec_other", "checkout.session.completed", session("paid"))
		_, err := g.HandleWebhook(ctx, payload, header)
		assert.True(t, utils.IsKind(err, utils.KindVerification))
	})
}
