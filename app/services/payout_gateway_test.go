package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/affiliate-engine/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(baseURL string) config.PayoutGatewayConfig {
	return config.PayoutGatewayConfig{
		BaseURL:       baseURL,
		KeyID:         "key",
		KeySecret:     "secret",
		AccountNumber: "2323230000",
		Currency:      "INR",
		Mode:          "IMPS",
		Timeout:       2 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
		RateLimit:     1000,
		Burst:         10,
	}
}

func TestCreatePayout(t *testing.T) {
	t.Run("sends request and returns payout id", func(t *testing.T) {
		var got createPayoutReq
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payouts", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"pout_1","status":"processing"}`))
		}))
		defer server.Close()

		gw := NewHTTPPayoutGateway(testGatewayConfig(server.URL))
		result, err := gw.CreatePayout(context.Background(), PayoutRequest{
			FundAccountID: "fa_1",
			Amount:        decimal.RequireFromString("125.50"),
			ReferenceID:   "wd_1",
		})
		require.NoError(t, err)
		assert.Equal(t, "pout_1", result.PayoutID)
		assert.Equal(t, int64(12550), got.Amount)
		assert.Equal(t, "fa_1", got.FundAccountID)
		assert.Equal(t, "2323230000", got.AccountNumber)
	})

	t.Run("retries on 5xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"id":"pout_2","status":"queued"}`))
		}))
		defer server.Close()

		gw := NewHTTPPayoutGateway(testGatewayConfig(server.URL))
		result, err := gw.CreatePayout(context.Background(), PayoutRequest{FundAccountID: "fa", Amount: decimal.NewFromInt(1), ReferenceID: "wd_2"})
		require.NoError(t, err)
		assert.Equal(t, "pout_2", result.PayoutID)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("retries on 429 then gives up", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		gw := NewHTTPPayoutGateway(testGatewayConfig(server.URL))
		_, err := gw.CreatePayout(context.Background(), PayoutRequest{FundAccountID: "fa", Amount: decimal.NewFromInt(1), ReferenceID: "wd_3"})
		require.Error(t, err)
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, http.StatusTooManyRequests, gwErr.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid fund account"}`))
		}))
		defer server.Close()

		gw := NewHTTPPayoutGateway(testGatewayConfig(server.URL))
		_, err := gw.CreatePayout(context.Background(), PayoutRequest{FundAccountID: "fa", Amount: decimal.NewFromInt(1), ReferenceID: "wd_4"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid fund account")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := testGatewayConfig(server.URL)
		cfg.RetryBackoff = time.Hour
		gw := NewHTTPPayoutGateway(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := gw.CreatePayout(ctx, PayoutRequest{FundAccountID: "fa", Amount: decimal.NewFromInt(1), ReferenceID: "wd_5"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
