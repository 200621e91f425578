package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ethics-review/internal/submission"
)

// Runner drives a session through every step from an answers file.
type Runner struct {
	Session *Session
	Answers *Answers
	Out     io.Writer

	// Attempts bounds the saves of one step when the failure is retryable.
	Attempts int
	Backoff  time.Duration
}

// Run starts at the current step and stops after the summary. Without
// Answers.Submit the summary only lists the sections still missing.
func (r *Runner) Run(ctx context.Context) error {
	s := r.Session
	total := len(s.Steps())
	for {
		step := s.Current()
		n := step.Number()

		if !s.Saved(n) && r.Answers.Has(n) {
			if err := s.Edit(r.Answers.Apply); err != nil {
				return fmt.Errorf("step %d (%s): %w", n, step.Title(), err)
			}
		}

		if summary, ok := step.(*SummaryStep); ok && !s.Saved(n) && !r.Answers.Submit {
			r.printMissing(summary)
			return nil
		}

		if !s.Saved(n) {
			if err := r.save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(r.Out, "[%d/%d] %s: saved\n", n, total, step.Title())
		} else {
			fmt.Fprintf(r.Out, "[%d/%d] %s: complete\n", n, total, step.Title())
		}

		err := s.Next(ctx)
		if errors.Is(err, ErrNoMoreSteps) {
			break
		}
		if err != nil {
			return err
		}
	}

	if app := s.Active(); app != nil {
		fmt.Fprintf(r.Out, "application %s submitted\n", app.ID())
	}
	return nil
}

func (r *Runner) save(ctx context.Context) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = r.Session.Save(ctx); err == nil || !shouldRetry(err) || i == attempts {
			return err
		}
		fmt.Fprintf(r.Out, "retrying step %d after error: %v\n", r.Session.Current().Number(), err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff * time.Duration(i)):
		}
	}
	return err
}

func shouldRetry(err error) bool {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Retryable
	}
	var uploads *UploadErrors
	if errors.As(err, &uploads) {
		for _, e := range uploads.Failed {
			if !retryable(e) {
				return false
			}
		}
		return true
	}
	return false
}

func (r *Runner) printMissing(step *SummaryStep) {
	if step.Summary == nil {
		return
	}
	missing := submission.MissingSections(step.Summary)
	if len(missing) == 0 {
		fmt.Fprintf(r.Out, "application %s is ready to submit\n", step.Summary.ID)
		return
	}
	fmt.Fprintf(r.Out, "application %s is missing: %s\n", step.Summary.ID, strings.Join(missing, ", "))
}
