package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	stockPath  = "/api/v1/products/availability"
	verifyPath = "/api/v1/promo/verify"
)

// StatusError is a non-2xx answer from the catalog.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog responded %d: %s", e.StatusCode, e.Body)
}

type stockRequest struct {
	ProductIDs []int64 `json:"productIds"`
}

type stockResponse struct {
	Products []Product `json:"products"`
}

// HTTPClient calls the catalog over JSON/HTTP behind a circuit breaker.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "catalog-http",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// 4xx answers mean the catalog is up
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return se.StatusCode < http.StatusInternalServerError
				}
				return err == nil
			},
		}),
	}
}

func (c *HTTPClient) CheckStock(ctx context.Context, productIDs []int64) ([]Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var resp stockResponse
	if err := c.postJSON(ctx, stockPath, stockRequest{ProductIDs: productIDs}, &resp); err != nil {
		return nil, fmt.Errorf("check stock: %w", err)
	}
	return resp.Products, nil
}

func (c *HTTPClient) VerifyPromo(ctx context.Context, req VerifyRequest) (*Verification, error) {
	var resp Verification
	if err := c.postJSON(ctx, verifyPath, req, &resp); err != nil {
		return nil, fmt.Errorf("verify promo: %w", err)
	}
	return &resp, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response failed: %w", err)
	}
	return nil
}
