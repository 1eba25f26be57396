package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"tutorbook/models"
	"tutorbook/utils"
)

// Sign computes the checksum of a flat data object: HMAC-SHA256 over its
// fields as key=value pairs sorted by key and joined with '&'.
func Sign(key string, data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fieldString(data[k]))
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// webhookBody is the checksum-signed callback envelope.
type webhookBody struct {
	Code      string         `json:"code"`
	Desc      string         `json:"desc"`
	Data      map[string]any `json:"data"`
	Signature string         `json:"signature"`
}

// verifySigned decodes a signed envelope and checks its checksum. The
// signature travels in the body; a non-empty header value must match it.
func verifySigned(key string, payload []byte, signature string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var body webhookBody
	if err := dec.Decode(&body); err != nil {
		return nil, &utils.VerificationError{Reason: "malformed payload"}
	}
	if body.Data == nil {
		return nil, &utils.VerificationError{Reason: "missing data"}
	}
	if signature == "" {
		signature = body.Signature
	}
	want := Sign(key, body.Data)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(signature))) {
		return nil, &utils.VerificationError{Reason: "checksum mismatch"}
	}
	return body.Data, nil
}

func eventFromData(data map[string]any, raw []byte, now time.Time) (*models.ProviderEvent, error) {
	orderCode := fieldString(data["orderCode"])
	if orderCode == "" {
		return nil, &utils.VerificationError{Reason: "missing order code"}
	}
	status := models.ProviderStatus(strings.ToUpper(fieldString(data["status"])))
	switch status {
	case models.ProviderPaid, models.ProviderCancelled, models.ProviderExpired, models.ProviderPending:
	default:
		return nil, &utils.VerificationError{Reason: "unknown status " + string(status)}
	}
	var amount int64
	if n, ok := data["amount"].(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return nil, &utils.VerificationError{Reason: "amount is not an integer"}
		}
		amount = v
	}
	return &models.ProviderEvent{
		OrderCode:  orderCode,
		Status:     status,
		Amount:     amount,
		Reference:  fieldString(data["reference"]),
		Raw:        string(raw),
		ReceivedAt: now.UTC(),
	}, nil
}

// HMACProvider talks to a checksum-signed hosted checkout over plain HTTP.
type HMACProvider struct {
	BaseURL     string
	ChecksumKey string
	Client      *http.Client
	Now         func() time.Time
}

func NewHMACProvider(baseURL, checksumKey string) *HMACProvider {
	return &HMACProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		ChecksumKey: checksumKey,
		Client:      &http.Client{Timeout: 10 * time.Second},
		Now:         time.Now,
	}
}

func (p *HMACProvider) Name() string { return "hmac" }

func (p *HMACProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (*ProviderLink, error) {
	data := map[string]any{
		"orderCode":   req.OrderCode,
		"amount":      req.Amount,
		"currency":    req.Currency,
		"description": req.Description,
		"returnUrl":   req.ReturnURL,
		"cancelUrl":   req.CancelURL,
		"expiredAt":   req.ExpiresAt.Unix(),
	}
	data["signature"] = Sign(p.ChecksumKey, data)

	var out struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
		Data struct {
			CheckoutURL   string `json:"checkoutUrl"`
			PaymentLinkID string `json:"paymentLinkId"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodPost, p.BaseURL+"/payment-requests", data, &out); err != nil {
		return nil, err
	}
	if out.Code != "00" {
		return nil, fmt.Errorf("payment link rejected: %s %s", out.Code, out.Desc)
	}
	return &ProviderLink{Reference: out.Data.PaymentLinkID, RedirectURL: out.Data.CheckoutURL}, nil
}

func (p *HMACProvider) ParseWebhook(payload []byte, signature string) (*models.ProviderEvent, error) {
	data, err := verifySigned(p.ChecksumKey, payload, signature)
	if err != nil {
		return nil, err
	}
	return eventFromData(data, payload, p.Now())
}

// FetchStatus polls the provider. The response is signed like a webhook
// and is checked the same way.
func (p *HMACProvider) FetchStatus(ctx context.Context, orderCode, _ string) (*models.ProviderEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/payment-requests/"+orderCode, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment status request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payment status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment status request: unexpected status %d", resp.StatusCode)
	}
	return p.ParseWebhook(body, "")
}

func (p *HMACProvider) Cancel(ctx context.Context, orderCode, _ string) error {
	data := map[string]any{"orderCode": orderCode}
	data["signature"] = Sign(p.ChecksumKey, data)
	return p.do(ctx, http.MethodPost, p.BaseURL+"/payment-requests/"+orderCode+"/cancel", data, nil)
}

func (p *HMACProvider) do(ctx context.Context, method, url string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("payment provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("payment provider request: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode payment provider response: %w", err)
	}
	return nil
}
