package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hr-lifecycle/backend/pkg/models"
)

// GatewayClient is an HTTP implementation of EmailExecutor, LetterGenerator
// and Notifier. It posts each intent as JSON to the integration gateway.
type GatewayClient struct {
	url    string
	client *http.Client
}

// NewGatewayClient creates a new GatewayClient. A zero timeout means no client timeout.
func NewGatewayClient(url string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type letterResponse struct {
	ArtifactRef string `json:"artifact_ref"`
}

// SendEmail posts a send_email intent to /email.
func (c *GatewayClient) SendEmail(ctx context.Context, intent models.Intent) error {
	return c.post(ctx, "/email", intent, nil)
}

// GenerateLetter posts a generate_letter intent to /letters and returns the artifact reference.
func (c *GatewayClient) GenerateLetter(ctx context.Context, intent models.Intent) (string, error) {
	var out letterResponse
	if err := c.post(ctx, "/letters", intent, &out); err != nil {
		return "", err
	}
	if out.ArtifactRef == "" {
		return "", fmt.Errorf("gateway returned no artifact reference for %s", intent.TemplateID)
	}
	return out.ArtifactRef, nil
}

// Notify posts an external_notify intent to /notify.
func (c *GatewayClient) Notify(ctx context.Context, intent models.Intent) error {
	return c.post(ctx, "/notify", intent, nil)
}

func (c *GatewayClient) post(ctx context.Context, path string, intent models.Intent, out any) error {
	if c.url == "" {
		return fmt.Errorf("integration gateway is not configured")
	}
	requestBody, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", intent.ID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s: status code %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
