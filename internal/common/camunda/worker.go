// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobHandler processes one activated job and completes, fails or throws
// on it itself.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Worker is an open job worker for one task type.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// StartWorker opens a job worker for taskType. It returns nil when the
// worker is disabled in configuration.
func (c *Client) StartWorker(taskType string, wcfg config.WorkerConfig, handler JobHandler, log logger.Logger) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	jobWorker := c.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return &Worker{worker: jobWorker, logger: log, taskType: taskType}
}

// Stop closes the worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
