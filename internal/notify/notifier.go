// internal/notify/notifier.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ethics-review/internal/common/config"
	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

const TypeApplicationSubmitted = "application_submitted"

const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"
)

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type template struct {
	subject string
	body    string
}

var templates = map[string]template{
	TypeApplicationSubmitted: {
		subject: "Ethics review application submitted: {{protocolNumber}}",
		body: "Application {{applicationId}} \"{{title}}\" by {{principalInvestigator}} ({{department}}) " +
			"was submitted for {{reviewType}} review on {{submittedAt}}.",
	},
}

// Notifier tells the ethics committee about submitted applications by
// email and publishes an event to an SNS topic. Each channel is optional.
type Notifier struct {
	cfg       config.NotificationConfig
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
	newID     func() string
	now       func() time.Time
}

func New(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:       cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NotifySubmitted sends every enabled notification for app. The error
// wraps ErrNotifyFailed when any channel failed.
func (n *Notifier) NotifySubmitted(ctx context.Context, app *models.Application) error {
	_, err := n.Send(ctx, app)
	return err
}

// Send delivers the submission notifications and returns one record per
// channel.
func (n *Notifier) Send(ctx context.Context, app *models.Application) ([]models.Notification, error) {
	data := map[string]interface{}{
		"applicationId":         app.ID,
		"title":                 app.Title,
		"protocolNumber":        app.ProtocolNumber,
		"principalInvestigator": app.PrincipalInvestigator,
		"department":            app.Department,
		"reviewType":            string(app.ReviewType),
		"submittedAt":           app.UpdatedAt.Format(time.RFC3339),
	}
	tmpl := templates[TypeApplicationSubmitted]
	subject := renderTemplate(tmpl.subject, data)
	body := renderTemplate(tmpl.body, data)

	var errs []error
	out := make([]models.Notification, 0, 2)

	email := n.record(app.ID, ChannelEmail, data)
	switch {
	case !n.cfg.Email.Enabled || n.sesClient == nil || n.cfg.Email.CommitteeEmail == "":
		email.Status = StatusDisabled
	default:
		id, err := n.sendEmail(ctx, n.cfg.Email.CommitteeEmail, subject, body)
		if err != nil {
			email.Status = StatusFailed
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			email.Status = StatusSent
			email.MessageID = id
		}
	}
	out = append(out, email)

	event := n.record(app.ID, ChannelSNS, data)
	switch {
	case !n.cfg.SNS.Enabled || n.snsClient == nil || n.cfg.SNS.TopicARN == "":
		event.Status = StatusDisabled
	default:
		id, err := n.publish(ctx, subject, data)
		if err != nil {
			event.Status = StatusFailed
			errs = append(errs, fmt.Errorf("sns: %w", err))
		} else {
			event.Status = StatusSent
			event.MessageID = id
		}
	}
	out = append(out, event)

	for _, rec := range out {
		n.logger.Info("notification processed", map[string]interface{}{
			"applicationId": app.ID,
			"channel":       rec.Channel,
			"status":        rec.Status,
		})
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %w", apperrors.ErrNotifyFailed, errors.Join(errs...))
	}
	return out, nil
}

func (n *Notifier) record(applicationID, channel string, payload map[string]interface{}) models.Notification {
	return models.Notification{
		ID:            n.newID(),
		ApplicationID: applicationID,
		Type:          TypeApplicationSubmitted,
		Channel:       channel,
		Payload:       payload,
		SentAt:        n.now(),
	}
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) (string, error) {
	out, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

func (n *Notifier) publish(ctx context.Context, subject string, data map[string]interface{}) (string, error) {
	message, err := json.Marshal(map[string]interface{}{
		"type": TypeApplicationSubmitted,
		"data": data,
	})
	if err != nil {
		return "", err
	}

	out, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.cfg.SNS.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(message)),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// renderTemplate replaces {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
