package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/affiliate-engine/app/metrics"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// PayoutRequest asks the gateway to move money to an affiliate's fund account
type PayoutRequest struct {
	FundAccountID string
	Amount        decimal.Decimal
	ReferenceID   string
	Narration     string
}

// PayoutResult is the gateway's acknowledgement of a payout
type PayoutResult struct {
	PayoutID string
	Status   string
}

// PayoutGateway submits payouts to the external payment gateway
type PayoutGateway interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

// GatewayError is a non-retryable gateway rejection, or the last retryable one
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payout gateway returned %d: %s", e.StatusCode, e.Body)
}

// HTTPPayoutGateway implements PayoutGateway over the gateway REST API
type HTTPPayoutGateway struct {
	cfg        config.PayoutGatewayConfig
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPPayoutGateway creates a new gateway client
func NewHTTPPayoutGateway(cfg config.PayoutGatewayConfig) *HTTPPayoutGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPPayoutGateway{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

type createPayoutReq struct {
	AccountNumber string `json:"account_number"`
	FundAccountID string `json:"fund_account_id"`
	Amount        int64  `json:"amount"` // minor units
	Currency      string `json:"currency"`
	Mode          string `json:"mode"`
	Purpose       string `json:"purpose"`
	ReferenceID   string `json:"reference_id"`
	Narration     string `json:"narration,omitempty"`
}

type createPayoutResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreatePayout submits a payout, retrying network errors, 5xx and 429 with linear backoff
func (g *HTTPPayoutGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	body, err := json.Marshal(createPayoutReq{
		AccountNumber: g.cfg.AccountNumber,
		FundAccountID: req.FundAccountID,
		Amount:        req.Amount.Shift(2).Round(0).IntPart(),
		Currency:      g.cfg.Currency,
		Mode:          g.cfg.Mode,
		Purpose:       "payout",
		ReferenceID:   req.ReferenceID,
		Narration:     req.Narration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payout request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * g.cfg.RetryBackoff):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("payout rate limiter: %w", err)
		}

		result, retryable, err := g.send(ctx, body, req.ReferenceID)
		if err == nil {
			metrics.PayoutGatewayRequestsTotal.WithLabelValues("success").Inc()
			return result, nil
		}
		lastErr = err
		if !retryable {
			metrics.PayoutGatewayRequestsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		metrics.PayoutGatewayRequestsTotal.WithLabelValues("retry").Inc()
		log.Printf("payout gateway attempt %d for %s failed: %v", attempt+1, req.ReferenceID, err)
	}

	metrics.PayoutGatewayRequestsTotal.WithLabelValues("exhausted").Inc()
	return nil, fmt.Errorf("payout gateway retries exhausted: %w", lastErr)
}

func (g *HTTPPayoutGateway) send(ctx context.Context, body []byte, referenceID string) (*PayoutResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Payout-Idempotency", referenceID)

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, false, err
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, &GatewayError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &GatewayError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out createPayoutResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("failed to decode payout response: %w", err)
	}
	if out.ID == "" {
		return nil, false, fmt.Errorf("payout response has no id")
	}
	return &PayoutResult{PayoutID: out.ID, Status: out.Status}, false, nil
}
