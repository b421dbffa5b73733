// Package gateway talks to the card payment provider. Amounts cross this
// boundary in major units on the Go side and minor units on the wire.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/domain"
	"tripdesk/internal/metrics"
	"tripdesk/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const maxErrorBody = 64 << 10

type Client struct {
	baseURL    string
	httpClient *http.Client
	verifier   domain.SignatureVerifier
	logger     *zerolog.Logger
}

type Option func(*Client)

// WithVerifier replaces the webhook signature verifier.
func WithVerifier(v domain.SignatureVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Bearer-authenticated client. The token source is owned by
// the client and caches the token until it expires.
func NewClient(cfg config.GatewayConfig, logger *zerolog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	src := oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.SecretKey,
		TokenType:   "Bearer",
	}))
	base := &http.Client{Timeout: timeout}
	hc := oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, base), src)
	hc.Timeout = timeout

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		verifier:   NewHMACVerifier(cfg.WebhookSecret),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error) {
	body := chargeRequest{
		Amount:      toMinor(req.Amount),
		Currency:    strings.ToUpper(req.Currency),
		Customer:    customerFromModel(req.Customer),
		Source:      source{ID: req.SourceID},
		Description: req.Description,
		Redirect:    link{URL: req.RedirectURL},
		Post:        link{URL: req.PostURL},
		Metadata:    req.Metadata,
	}
	if body.Source.ID == "" {
		body.Source.ID = "src_all"
	}

	var resp chargeResponse
	if err := c.doJSON(ctx, "create_charge", http.MethodPost, "/charges", body, &resp); err != nil {
		return nil, err
	}
	charge := resp.toModel()
	return &charge, nil
}

func (c *Client) GetCharge(ctx context.Context, chargeID string) (*models.Charge, error) {
	var resp chargeResponse
	if err := c.doJSON(ctx, "get_charge", http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, &resp); err != nil {
		return nil, err
	}
	charge := resp.toModel()
	return &charge, nil
}

func (c *Client) CreateRefund(ctx context.Context, req models.RefundRequest) (*models.Refund, error) {
	body := refundRequest{
		ChargeID:    req.ChargeID,
		Reason:      req.Reason,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.Amount != nil {
		minor := toMinor(*req.Amount)
		body.Amount = &minor
	}

	var resp refundResponse
	if err := c.doJSON(ctx, "create_refund", http.MethodPost, "/refunds", body, &resp); err != nil {
		return nil, err
	}
	refund := resp.toModel()
	return &refund, nil
}

func (c *Client) GetRefund(ctx context.Context, refundID string) (*models.Refund, error) {
	var resp refundResponse
	if err := c.doJSON(ctx, "get_refund", http.MethodGet, "/refunds/"+url.PathEscape(refundID), nil, &resp); err != nil {
		return nil, err
	}
	refund := resp.toModel()
	return &refund, nil
}

// VerifyWebhookSignature delegates to the configured verifier.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.verifier == nil {
		return false
	}
	return c.verifier.Verify(payload, signature)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindTransport)
			var gwErr *Error
			if errors.As(err, &gwErr) {
				outcome = string(gwErr.Kind)
			}
		}
		metrics.ObserveGateway(op, outcome, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindDecode, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		gwErr := transportError(op, err)
		c.logger.Warn().Err(err).Str("op", op).Str("kind", string(gwErr.Kind)).Msg("gateway request failed")
		return gwErr
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gwErr := statusError(op, resp.StatusCode, errorMessage(raw, resp.Status))
		c.logger.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("kind", string(gwErr.Kind)).
			Str("message", gwErr.Message).
			Msg("gateway returned error")
		return gwErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
