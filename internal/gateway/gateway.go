package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Client talks to the payment gateway. Amounts are in minor units (paise).
type Client interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error)
	CreateRefund(ctx context.Context, paymentRef string, amountMinorUnits int64) (string, error)
}

type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *zap.Logger
}

func NewHTTPClient(baseURL, keyID, keySecret string, logger *zap.Logger) *HTTPClient {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &HTTPClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 10 * time.Second},
		breaker:   gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:    logger,
	}
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type gatewayEntity struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error) {
	body, err := c.post(ctx, "/orders", orderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return "", err
	}
	return parseEntityID(body)
}

func (c *HTTPClient) CreateRefund(ctx context.Context, paymentRef string, amountMinorUnits int64) (string, error) {
	body, err := c.post(ctx, fmt.Sprintf("/payments/%s/refund", paymentRef), refundRequest{
		Amount: amountMinorUnits,
	})
	if err != nil {
		return "", err
	}
	return parseEntityID(body)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request failed: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.keyID, c.keySecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, out)
		}
		return out, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return body, err
}

func parseEntityID(body []byte) (string, error) {
	var entity gatewayEntity
	if err := json.Unmarshal(body, &entity); err != nil {
		return "", fmt.Errorf("unmarshal gateway response failed: %w", err)
	}
	if entity.ID == "" {
		return "", errors.New("gateway response missing id")
	}
	return entity.ID, nil
}
