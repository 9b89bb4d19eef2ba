package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type GatewayConfig struct {
	URL        string
	APIKey     string
	Sender     string
	Timeout    time.Duration
	Retries    uint
	RetryDelay time.Duration
}

// GatewaySMS posts messages to an HTTP SMS provider as JSON.
type GatewaySMS struct {
	cfg    GatewayConfig
	client *http.Client
	logger *logger.Logger
}

type gatewayRequest struct {
	Reference string `json:"reference"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Text      string `json:"text"`
}

func NewGatewaySMS(cfg GatewayConfig, log *logger.Logger) *GatewaySMS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &GatewaySMS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

func (g *GatewaySMS) Send(ctx context.Context, recipient, message string) error {
	reference := uuid.NewString()
	body, err := json.Marshal(gatewayRequest{
		Reference: reference,
		From:      g.cfg.Sender,
		To:        recipient,
		Text:      message,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
			req.Header.Set("Idempotency-Key", reference)

			resp, err := g.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					g.logger.Warn("Failed to close response body", "error", closeErr.Error())
				}
			}()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}

			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("sms gateway returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
			// Client errors will not succeed on replay.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(g.cfg.Retries),
		retry.Delay(g.cfg.RetryDelay),
		retry.MaxDelay(time.Minute),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("Retrying SMS gateway send after error",
				"attempt", n, "reference", reference, "error", err.Error())
		}),
	)
}
