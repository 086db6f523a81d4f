// Package walletapi is the HTTP client for the external wallet gateway
// that owns player balances. The wagering engine never touches a
// balance directly; every debit and credit is a signed REST call here.
package walletapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"plinkoengine/internal/config"
)

// Client wraps a resty HTTP client with HMAC request signing, grounded
// on 0xtitan6-polymarket-mm/internal/exchange/client.go's rest-client
// shape. Unlike that client it does not retry: spec.md §9 calls retry
// policy a production concern explicitly out of scope here, so every
// call attempts once and surfaces the raw error to its caller.
type Client struct {
	http   *resty.Client
	signer *Signer
}

// NewClient builds a wallet gateway client from configuration.
func NewClient(cfg config.WalletConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		signer: NewSigner(cfg.SignatureSecret),
	}
}

// BetRequest is the body of POST /api/transactions/bet, per spec.md §6.
type BetRequest struct {
	SessionToken  string                 `json:"sessionToken"`
	BetAmount     decimal.Decimal        `json:"betAmount"`
	Currency      string                 `json:"currency"`
	TransactionID string                 `json:"transactionId"`
	PlayerID      string                 `json:"playerId,omitempty"`
	TenantID      string                 `json:"tenantId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// CreditType distinguishes a payout credit from a refund credit.
type CreditType string

const (
	CreditTypeWin    CreditType = "win"
	CreditTypeRefund CreditType = "refund"
)

// CreditRequest is the body of POST /api/transactions/credit, per spec.md §6.
type CreditRequest struct {
	SessionToken  string                 `json:"sessionToken"`
	WinAmount     decimal.Decimal        `json:"winAmount"`
	Currency      string                 `json:"currency"`
	TransactionID string                 `json:"transactionId"`
	PlayerID      string                 `json:"playerId,omitempty"`
	TenantID      string                 `json:"tenantId,omitempty"`
	Type          CreditType             `json:"type,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionResult is the inner `data` object of the gateway envelope.
type TransactionResult struct {
	Status     string          `json:"status"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Message    string          `json:"message,omitempty"`
}

// TransactionEnvelope is the wallet gateway's response shape: an outer
// transport status plus the inner SUCCESS|FAILED business result.
type TransactionEnvelope struct {
	Status string             `json:"status"`
	Data   TransactionResult `json:"data"`
}

// Succeeded reports whether the gateway's business-level result was SUCCESS.
func (e *TransactionEnvelope) Succeeded() bool {
	return e.Data.Status == "SUCCESS"
}

// Bet debits a player's wallet for a wager. A non-2xx HTTP response
// returns a *GatewayError; a 2xx response with a FAILED business status
// is returned to the caller for it to classify (InsufficientBalance).
func (c *Client) Bet(ctx context.Context, req BetRequest) (*TransactionEnvelope, error) {
	var result TransactionEnvelope
	resp, err := c.signedRequest(ctx, http.MethodPost, "/api/transactions/bet", req, &result)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &GatewayError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return &result, nil
}

// Credit pays out winnings or a refund to a player's wallet.
func (c *Client) Credit(ctx context.Context, req CreditRequest) (*TransactionEnvelope, error) {
	var result TransactionEnvelope
	resp, err := c.signedRequest(ctx, http.MethodPost, "/api/transactions/credit", req, &result)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &GatewayError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return &result, nil
}

func (c *Client) signedRequest(ctx context.Context, method, path string, body, result interface{}) (*resty.Response, error) {
	headers, canonicalBody, err := c.signer.Sign(method, path, body, time.Now())
	if err != nil {
		return nil, fmt.Errorf("walletapi: sign request: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(canonicalBody).
		SetResult(result).
		Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("walletapi: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// GatewayError carries a non-2xx response from the wallet gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("walletapi: gateway returned %d: %s", e.StatusCode, e.Body)
}
