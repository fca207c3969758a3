package paygate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/morningmarket/morningmarket-backend/pkg/config"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

const (
	responseBodyReadLimit int64 = 4096
	retryBaseDelay              = 200 * time.Millisecond
)

// Client talks to the payment gateway. Every call happens OUTSIDE any
// database transaction; callers commit gateway outcomes in a separate write
// transaction afterwards.
type Client struct {
	httpClient *http.Client
	baseURL    string
	adminKey   string
	cid        string
	maxRetries uint64
	enabled    bool
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the gateway client from config. A disabled config yields a
// client whose Enabled() is false; callers short-circuit to provider "none".
func NewClient(cfg config.PayGateConfig, opts ...Option) (*Client, error) {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		adminKey:   strings.TrimSpace(cfg.AdminKey),
		cid:        strings.TrimSpace(cfg.MerchantCID),
		maxRetries: uint64(cfg.MaxRetries),
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if client.enabled {
		if client.baseURL == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "paygate base url is required")
		}
		if client.adminKey == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "paygate admin key is required")
		}
	}
	if client.httpClient.Timeout == 0 {
		client.httpClient.Timeout = 10 * time.Second
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Enabled reports whether gateway calls are configured for this deployment.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Ready opens a transaction and returns the tid plus the shopper redirect URL.
func (c *Client) Ready(ctx context.Context, req ReadyRequest) (*ReadyResponse, error) {
	if !c.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if req.OrderID == "" || req.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id are required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("partner_order_id", req.OrderID)
	form.Set("partner_user_id", req.UserID)
	form.Set("item_name", req.ItemName)
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("total_amount", strconv.Itoa(req.AmountCents))
	form.Set("tax_free_amount", "0")

	var out ReadyResponse
	if err := c.postForm(ctx, "/v1/payment/ready", form, &out); err != nil {
		return nil, err
	}
	if out.TID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway ready response missing tid")
	}
	return &out, nil
}

// Approve settles a ready transaction with the shopper's pg token.
func (c *Client) Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error) {
	if !c.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if req.TID == "" || req.PGToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tid and pg token are required")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("tid", req.TID)
	form.Set("partner_order_id", req.OrderID)
	form.Set("partner_user_id", req.UserID)
	form.Set("pg_token", req.PGToken)

	var out ApproveResponse
	if err := c.postForm(ctx, "/v1/payment/approve", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel voids an approved transaction.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	if !c.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if req.TID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tid is required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel amount must be positive")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("tid", req.TID)
	form.Set("cancel_amount", strconv.Itoa(req.AmountCents))
	form.Set("cancel_tax_free_amount", "0")

	var out CancelResponse
	if err := c.postForm(ctx, "/v1/payment/cancel", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderStatus looks up the gateway-side state of a transaction.
func (c *Client) OrderStatus(ctx context.Context, tid string) (*StatusResponse, error) {
	if !c.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if tid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tid is required")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("tid", tid)

	var out StatusResponse
	if err := c.postForm(ctx, "/v1/payment/order", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// postForm sends a form-encoded request with bounded retries. Transport
// failures and 5xx responses are retried; 4xx rejections surface immediately
// as state conflicts.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	endpoint := c.baseURL + path
	body := form.Encode()

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(retryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build gateway request")
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
		httpReq.Header.Set("Authorization", "KakaoAK "+c.adminKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute gateway request"))
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
			return retry.RetryableError(pkgerrors.Wrap(
				pkgerrors.CodeDependency,
				fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
				"gateway request failed",
			))

		case resp.StatusCode >= http.StatusBadRequest:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
			return pkgerrors.Wrap(
				pkgerrors.CodeStateConflict,
				fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
				"gateway rejected request",
			)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
		}
		return nil
	})
}
