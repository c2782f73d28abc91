package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const createLinkPath = "/PaymentBridge/create-link"

// HyperPayOption configures a HyperPay client.
type HyperPayOption func(*HyperPay)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) HyperPayOption {
	return func(h *HyperPay) { h.client = c }
}

// WithRegionCode sets the H-Region-Code header.
func WithRegionCode(code string) HyperPayOption {
	return func(h *HyperPay) {
		if code != "" {
			h.regionCode = code
		}
	}
}

// HyperPay talks to the HyperPay PaymentBridge API.
type HyperPay struct {
	baseURL    string
	apiKey     string
	regionCode string
	client     *http.Client
}

// NewHyperPay creates a client for apiBase, which may be a bare host
// ("api.hyperpay.com") or a full URL.
func NewHyperPay(apiBase, apiKey string, timeout time.Duration, opts ...HyperPayOption) *HyperPay {
	base := strings.TrimRight(apiBase, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	h := &HyperPay{
		baseURL:    base,
		apiKey:     apiKey,
		regionCode: "TR",
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HyperPay) Name() string { return "hyperpay" }

type createLinkBody struct {
	IFrame       int         `json:"iFrame"`
	OrderID      string      `json:"OrderID"`
	NotifyURL    string      `json:"NotifyURL"`
	ProductID    string      `json:"ProductID"`
	ProductName  string      `json:"ProductName"`
	TotalAmount  json.Number `json:"TotalAmount"`
	ProductImage string      `json:"ProductImage"`
}

type createLinkResponse struct {
	Success bool `json:"success"`
	Data    struct {
		PaymentLinkID string `json:"paymentLinkID"`
		PaymentURL    string `json:"paymentUrl"`
		PaymentGUID   string `json:"paymentGuid"`
	} `json:"data"`
}

func (h *HyperPay) CreatePaymentLink(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	body, err := json.Marshal(createLinkBody{
		IFrame:       1,
		OrderID:      req.OrderID,
		NotifyURL:    req.NotifyURL,
		ProductID:    strconv.FormatInt(req.ProductID, 10),
		ProductName:  req.ProductName,
		TotalAmount:  json.Number(req.TotalAmount.String()),
		ProductImage: req.ProductImage,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create-link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+createLinkPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create-link request: %w", err)
	}
	httpReq.Header.Set("Apikey", h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("H-Region-Code", h.regionCode)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create-link request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read create-link response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("create-link: %w", &StatusError{Code: resp.StatusCode, Body: json.RawMessage(raw)})
	}

	var parsed createLinkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode create-link response: %w", err)
	}

	return &LinkResult{
		Success: parsed.Success,
		LinkID:  parsed.Data.PaymentLinkID,
		URL:     parsed.Data.PaymentURL,
		GUID:    parsed.Data.PaymentGUID,
		Raw:     json.RawMessage(raw),
	}, nil
}
