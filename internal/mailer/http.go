// Package mailer delivers rendered emails through the provider HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

// maxErrorBody caps how much of a provider error response is kept.
const maxErrorBody = 2048

type Config struct {
	Logger  *slog.Logger
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPMailer posts one JSON message per email, authenticated with the
// tenant's own provider credential.
type HTTPMailer struct {
	logger  *slog.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPMailer(cfg *Config) *HTTPMailer {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPMailer{logger: logger, baseURL: cfg.BaseURL, client: client}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send delivers email. The job id doubles as the idempotency key so a
// provider can drop a resend of the same step.
func (m *HTTPMailer) Send(ctx context.Context, email domain.Email) error {
	body, err := json.Marshal(sendRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+email.Credential)
	if email.JobID != "" {
		req.Header.Set("Idempotency-Key", email.JobID)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("mail provider rejected message with status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	m.logger.Debug("Email accepted by provider",
		slog.String("job_id", email.JobID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
