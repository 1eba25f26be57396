package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tutorbook/models"
)

// SandboxProvider settles payments in memory. Its webhooks use the same
// checksum envelope as HMACProvider, so callbacks are still verified. It
// backs the memory store driver and the tests.
type SandboxProvider struct {
	ChecksumKey string
	BaseURL     string
	Now         func() time.Time
	// FailLinks makes CreatePaymentLink fail.
	FailLinks bool

	mu      sync.Mutex
	links   map[string]LinkRequest
	status  map[string]models.ProviderStatus
	Cancels []string
}

func NewSandboxProvider(checksumKey, baseURL string) *SandboxProvider {
	return &SandboxProvider{
		ChecksumKey: checksumKey,
		BaseURL:     baseURL,
		Now:         time.Now,
		links:       make(map[string]LinkRequest),
		status:      make(map[string]models.ProviderStatus),
	}
}

func (p *SandboxProvider) Name() string { return "sandbox" }

func (p *SandboxProvider) CreatePaymentLink(_ context.Context, req LinkRequest) (*ProviderLink, error) {
	if p.FailLinks {
		return nil, fmt.Errorf("sandbox: payment link unavailable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links[req.OrderCode] = req
	p.status[req.OrderCode] = models.ProviderPending
	return &ProviderLink{Reference: "sbx_" + req.OrderCode, RedirectURL: p.BaseURL + "/pay/" + req.OrderCode}, nil
}

func (p *SandboxProvider) ParseWebhook(payload []byte, signature string) (*models.ProviderEvent, error) {
	data, err := verifySigned(p.ChecksumKey, payload, signature)
	if err != nil {
		return nil, err
	}
	return eventFromData(data, payload, p.Now())
}

func (p *SandboxProvider) FetchStatus(_ context.Context, orderCode, reference string) (*models.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.status[orderCode]
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown order %s", orderCode)
	}
	return &models.ProviderEvent{
		OrderCode:  orderCode,
		Status:     st,
		Amount:     p.links[orderCode].Amount,
		Reference:  reference,
		Raw:        `{"source":"sandbox-poll"}`,
		ReceivedAt: p.Now().UTC(),
	}, nil
}

func (p *SandboxProvider) Cancel(_ context.Context, orderCode, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cancels = append(p.Cancels, orderCode)
	if p.status[orderCode] == models.ProviderPending {
		p.status[orderCode] = models.ProviderCancelled
	}
	return nil
}

// Settle sets the provider-side status of an order and returns the signed
// webhook body the provider would send for it.
func (p *SandboxProvider) Settle(orderCode string, status models.ProviderStatus) ([]byte, error) {
	p.mu.Lock()
	link, ok := p.links[orderCode]
	if ok {
		p.status[orderCode] = status
	}
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown order %s", orderCode)
	}
	return SignedWebhook(p.ChecksumKey, orderCode, status, link.Amount)
}

// SignedWebhook builds a checksum-signed callback body.
func SignedWebhook(key, orderCode string, status models.ProviderStatus, amount int64) ([]byte, error) {
	data := map[string]any{
		"orderCode": orderCode,
		"status":    string(status),
		"amount":    json.Number(fmt.Sprintf("%d", amount)),
		"reference": "sbx_" + orderCode,
	}
	return json.Marshal(webhookBody{
		Code:      "00",
		Desc:      "success",
		Data:      data,
		Signature: Sign(key, data),
	})
}
