// internal/workers/application/submit-application/handler.go
package submitapplication

import (
	"context"
	"encoding/json"
	"time"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/metrics"
	"ethics-review/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "submit-application"
)

// Submitter runs the submission gate.
type Submitter interface {
	Submit(ctx context.Context, applicationID string) (*models.Application, error)
}

// Handler submits an application from a BPMN process. Incomplete,
// already submitted and unknown applications become BPMN errors, store
// failures are retried.
type Handler struct {
	config     *Config
	gate       Submitter
	errHandler *apperrors.JobErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, gate Submitter, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		gate:       gate,
		errHandler: apperrors.NewJobErrorHandler(log),
		logger:     log,
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

// Execute submits input.ApplicationID.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := uuid.Parse(input.ApplicationID); err != nil {
		return nil, apperrors.NewValidationError(map[string]string{"applicationId": "Invalid uuid"})
	}

	app, err := h.gate.Submit(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	return &Output{
		ApplicationID:     app.ID,
		ApplicationStatus: string(app.Status),
		ProtocolNumber:    app.ProtocolNumber,
		SubmittedAt:       app.UpdatedAt.UTC().Format(time.RFC3339),
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
	h.logger.Info("application submitted", map[string]interface{}{
		"jobKey":        job.Key,
		"applicationId": output.ApplicationID,
	})
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.FromError(err).Code)).Inc()
	h.errHandler.HandleJobError(context.Background(), client, job, err)
}
