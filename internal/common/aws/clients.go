// internal/common/aws/clients.go
package aws

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Clients holds the AWS service clients used for notifications.
type Clients struct {
	SES *ses.Client
	SNS *sns.Client
}

// NewClients loads one AWS config and builds the SES and SNS clients from
// it. Static credentials are used when accessKey is set, otherwise the
// default chain applies.
func NewClients(ctx context.Context, region, accessKey, secretKey string) (*Clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Clients{
		SES: ses.NewFromConfig(cfg),
		SNS: sns.NewFromConfig(cfg),
	}, nil
}
