package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// PaymentGateway is the downstream charge channel. Retry submits a fresh
// charge attempt for an already-recorded payment; a nil error means the
// provider accepted the charge.
type PaymentGateway interface {
	Retry(ctx context.Context, paymentID string, amount int64, currency string) error
}

// HTTPPaymentGateway talks to the provider's retry endpoint.
type HTTPPaymentGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPaymentGateway() *HTTPPaymentGateway {
	baseURL := "https://gateway.example.com/v1"
	if envURL := os.Getenv("PAYMENT_GATEWAY_URL"); envURL != "" {
		baseURL = envURL
	}
	return &HTTPPaymentGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *HTTPPaymentGateway) Retry(ctx context.Context, paymentID string, amount int64, currency string) error {
	payload, err := json.Marshal(map[string]any{
		"paymentId": paymentID,
		"amount":    amount,
		"currency":  currency,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/payments/%s/retry", g.baseURL, paymentID)
	log.Printf("[GATEWAY] Retrying payment %s via %s", paymentID, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("[GATEWAY] Retry request failed for payment %s: %v", paymentID, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		log.Printf("[GATEWAY] Retry declined for payment %s: %s %s", paymentID, result.Code, result.Message)
		return fmt.Errorf("gateway declined %s: %s", result.Code, result.Message)
	}

	return nil
}
