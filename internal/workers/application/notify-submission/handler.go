// internal/workers/application/notify-submission/handler.go
package notifysubmission

import (
	"context"
	"encoding/json"
	"time"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/metrics"
	"ethics-review/internal/models"
	"ethics-review/internal/notify"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "notify-submission"
)

type ApplicationLoader interface {
	Get(ctx context.Context, id string) (*models.Application, error)
}

type Sender interface {
	Send(ctx context.Context, app *models.Application) ([]models.Notification, error)
}

// Handler notifies the ethics committee about a submitted application.
type Handler struct {
	config     *Config
	apps       ApplicationLoader
	sender     Sender
	errHandler *apperrors.JobErrorHandler
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, apps ApplicationLoader, sender Sender, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		apps:       apps,
		sender:     sender,
		errHandler: apperrors.NewJobErrorHandler(log),
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, apperrors.NewValidationError(map[string]string{"variables": "Invalid job variables"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}
	h.complete(client, job, output)
}

// Execute sends the notifications. It fails only when no channel
// delivered, so a retry never repeats a message that was already sent.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := uuid.Parse(input.ApplicationID); err != nil {
		return nil, apperrors.NewValidationError(map[string]string{"applicationId": "Invalid uuid"})
	}

	app, err := h.apps.Get(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.IsSubmitted() {
		return nil, apperrors.NewValidationError(map[string]string{"status": "Application is not submitted"})
	}

	notifications, err := h.sender.Send(ctx, app)

	var sent, failed int
	for _, n := range notifications {
		switch n.Status {
		case notify.StatusSent:
			sent++
		case notify.StatusFailed:
			failed++
		}
	}
	if err != nil && sent == 0 {
		return nil, err
	}

	status := StatusDisabled
	switch {
	case sent > 0 && failed > 0:
		status = StatusPartial
	case sent > 0:
		status = StatusSent
	}

	return &Output{
		ApplicationID: app.ID,
		Status:        status,
		Notifications: notifications,
		NotifiedAt:    h.now().Format(time.RFC3339),
	}, nil
}

func (h *Handler) complete(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey":        job.Key,
		"applicationId": output.ApplicationID,
		"status":        output.Status,
	})
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.FromError(err).Code)).Inc()
	h.errHandler.HandleJobError(context.Background(), client, job, err)
}
