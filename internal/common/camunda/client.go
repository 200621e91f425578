// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client.
type Client struct {
	client zbc.Client
	config *ClientConfig
	logger logger.Logger
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 5,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// ConfigFrom builds a plaintext client config from the camunda section.
func ConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	return &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         time.Duration(cfg.RequestTimeout) * time.Millisecond,
		RetryConfig:            DefaultRetryConfig,
	}
}

// NewClient creates the Zeebe client and waits until the broker answers a
// topology request, retrying transient failures with exponential backoff.
func NewClient(ctx context.Context, cfg *ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{
		client: zeebeClient,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "zeebe"}),
	}
	if err := c.waitForBroker(ctx); err != nil {
		zeebeClient.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) waitForBroker(ctx context.Context) error {
	retry := c.config.RetryConfig
	for attempt := 0; ; attempt++ {
		err := c.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		if !isRetryableZeebeError(err) || attempt == retry.MaxRetries {
			return fmt.Errorf("failed to connect to Zeebe broker at %s after %d attempts: %w",
				c.config.GatewayAddress, attempt+1, err)
		}

		delay := backoff(retry, attempt)
		c.logger.Warn("zeebe broker not reachable, retrying", map[string]interface{}{
			"attempt":     attempt + 1,
			"nextRetryIn": delay.String(),
			"error":       err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func backoff(retry *RetryConfig, attempt int) time.Duration {
	delay := retry.BaseDelay * time.Duration(1<<attempt)
	if delay > retry.MaxDelay {
		delay = retry.MaxDelay
	}
	return delay
}

// Raw returns the underlying Zeebe client.
func (c *Client) Raw() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck sends a topology request to the broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// isRetryableZeebeError checks if the error is transient and should be retried.
func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
