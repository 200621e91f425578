package notify

import (
	"context"

	commonaws "ethics-review/internal/common/aws"
	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"
)

// NewFromConfig builds a Notifier with AWS clients for the enabled
// channels using the default credential chain. When no channel is
// enabled no AWS config is loaded.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	if !cfg.Email.Enabled && !cfg.SNS.Enabled {
		return New(cfg, nil, nil, log), nil
	}

	clients, err := commonaws.NewClients(ctx, cfg.AWS.Region, "", "")
	if err != nil {
		return nil, err
	}

	var sesClient SESService
	if cfg.Email.Enabled {
		sesClient = clients.SES
	}
	var snsClient SNSService
	if cfg.SNS.Enabled {
		snsClient = clients.SNS
	}
	return New(cfg, sesClient, snsClient, log), nil
}
