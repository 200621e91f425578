// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobErrorHandler turns worker failures into Zeebe fail or throw commands.
type JobErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewJobErrorHandler(logger Logger) *JobErrorHandler {
	return &JobErrorHandler{logger: logger}
}

// HandleJobError retries technical failures while the job has retries left
// and throws a BPMN error for business failures.
func (h *JobErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := FromError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"errorCode":          string(stdErr.Code),
		"bpmnErrorCode":      bpmnErr.Code,
		"details":            stdErr.Details,
		"retryable":          stdErr.Retryable,
		"errorCategory":      GetErrorCategory(stdErr.Code),
		"processInstanceKey": job.ProcessInstanceKey,
	})

	if bpmnErr.Retries > 0 && job.Retries > 0 {
		h.failJob(ctx, client, job, bpmnErr)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

func (h *JobErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	retries := bpmnErr.Retries
	if int(job.Retries)-1 < retries {
		retries = int(job.Retries) - 1
	}

	_, sendErr := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		ErrorMessage(bpmnErr.Message).
		Send(ctx)
	if sendErr != nil {
		h.logger.Error("Failed to send fail job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}

func (h *JobErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err == nil {
		if withVars, varErr := cmd.VariablesFromString(string(varsJSON)); varErr == nil {
			if _, sendErr := withVars.Send(ctx); sendErr != nil {
				h.logger.Error("Failed to send throw error command", map[string]interface{}{
					"jobKey": job.Key,
					"error":  sendErr.Error(),
				})
			}
			return
		}
	}

	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		h.logger.Error("Failed to send throw error command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}
