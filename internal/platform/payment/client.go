// Package payment creates payment requests (hosted payment links) for
// invoices through an external HTTP service.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned when no payment service URL is configured.
var ErrDisabled = errors.New("payment links are not configured")

type Request struct {
	PatientID    string `json:"patient_id"`
	DentistID    string `json:"dentist_id"`
	AmountCents  int64  `json:"amount"`
	Description  string `json:"description"`
	PatientEmail string `json:"patient_email,omitempty"`
	// InvoiceID is sent as the Idempotency-Key so a retried call does not
	// create a second payment request.
	InvoiceID string `json:"invoice_id,omitempty"`
}

type Response struct {
	PaymentURL       string `json:"payment_url,omitempty"`
	PaymentRequestID string `json:"payment_request_id,omitempty"`
}

type Requester interface {
	CreatePaymentRequest(ctx context.Context, req Request) (*Response, error)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sign returns the hex HMAC-SHA256 of payload under key.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) CreatePaymentRequest(ctx context.Context, in Request) (*Response, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrDisabled
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %d", in.AmountCents)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Signature", "sha256="+Sign(payload, c.apiKey))
	}
	if in.InvoiceID != "" {
		req.Header.Set("Idempotency-Key", in.InvoiceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call payment service: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("payment service returned %d: %s", resp.StatusCode, snippet)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if out.PaymentURL == "" && out.PaymentRequestID == "" {
		return nil, errors.New("payment service returned neither a url nor a request id")
	}
	return &out, nil
}
