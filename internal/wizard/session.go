// Package wizard drives the eleven step application form against the
// ethics review API.
package wizard

import (
	"context"
	"errors"
	"fmt"

	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"
)

// ActiveApplication identifies the application a session edits. It is
// created by step 1 or by Resume and never changes afterwards.
type ActiveApplication struct {
	id             string
	protocolNumber string
}

func newActiveApplication(app *models.Application) *ActiveApplication {
	return &ActiveApplication{id: app.ID, protocolNumber: app.ProtocolNumber}
}

func (a *ActiveApplication) ID() string             { return a.id }
func (a *ActiveApplication) ProtocolNumber() string { return a.protocolNumber }

// Session holds the position in the wizard and the active application.
//
// A step can be left forward only after it was saved in this session, or
// was loaded complete and has not been edited since. Back is always
// allowed. Goto reaches saved steps and the first unsaved one.
type Session struct {
	client  EntityClient
	steps   []Step
	current int
	active  *ActiveApplication
	saved   map[int]bool
	logger  logger.Logger
}

func NewSession(client EntityClient, log logger.Logger) *Session {
	return &Session{
		client: client,
		steps:  DefaultSteps(),
		saved:  make(map[int]bool),
		logger: log.WithFields(map[string]interface{}{"component": "wizard"}),
	}
}

func (s *Session) Current() Step { return s.steps[s.current] }

func (s *Session) Active() *ActiveApplication { return s.active }

func (s *Session) Steps() []Step { return s.steps }

// Saved reports whether step n counts as saved.
func (s *Session) Saved(n int) bool { return s.saved[n] }

func (s *Session) bind(app *ActiveApplication) error {
	if s.active != nil {
		return ErrApplicationBound
	}
	s.active = app
	return nil
}

// Resume binds the session to an existing application, loads every step
// and moves to the first incomplete one.
func (s *Session) Resume(ctx context.Context, id string) error {
	if s.active != nil {
		return ErrApplicationBound
	}
	agg, err := s.client.GetApplication(ctx, id)
	if err != nil {
		return classify(s.steps[0], err)
	}
	if err := s.bind(newActiveApplication(&agg.Application)); err != nil {
		return err
	}

	s.current = len(s.steps) - 1
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		complete, err := step.Load(ctx, s.client, s.active)
		if err != nil {
			return classify(step, err)
		}
		s.saved[step.Number()] = complete
		if !complete {
			s.current = i
		}
	}

	s.logger.Info("application resumed", map[string]interface{}{
		"applicationId": id,
		"step":          s.Current().Number(),
	})
	return nil
}

// Edit applies fn to the current step. The step is no longer considered
// saved until the next successful Save.
func (s *Session) Edit(fn func(Step) error) error {
	s.saved[s.Current().Number()] = false
	return fn(s.Current())
}

// Save validates the current step locally and then writes it. On failure
// the session stays on the step.
func (s *Session) Save(ctx context.Context) error {
	step := s.Current()

	cr, creates := step.(creator)
	if s.active == nil && !creates {
		return ErrNoActiveApplication
	}
	if err := step.Validate(s.active); err != nil {
		return err
	}

	var err error
	if s.active == nil {
		var app *ActiveApplication
		if app, err = cr.Create(ctx, s.client); err == nil {
			err = s.bind(app)
		}
	} else {
		err = step.Save(ctx, s.client, s.active)
	}
	if err != nil {
		err = classify(step, err)
		s.logger.Warn("step save failed", map[string]interface{}{
			"step":  step.Number(),
			"error": err.Error(),
		})
		return err
	}

	s.saved[step.Number()] = true
	s.logger.Info("step saved", map[string]interface{}{
		"step":          step.Number(),
		"applicationId": s.active.ID(),
	})
	return nil
}

// Next moves to the following step and loads it.
func (s *Session) Next(ctx context.Context) error {
	if !s.saved[s.Current().Number()] {
		return ErrStepNotSaved
	}
	if s.current == len(s.steps)-1 {
		return ErrNoMoreSteps
	}
	return s.enter(ctx, s.current+1)
}

// Back moves to the previous step without reloading it.
func (s *Session) Back() {
	if s.current > 0 {
		s.current--
	}
}

// Goto moves to step n (1-based).
func (s *Session) Goto(ctx context.Context, n int) error {
	if n < 1 || n > len(s.steps) {
		return fmt.Errorf("%w: step %d does not exist", ErrStepLocked, n)
	}
	if !s.saved[n] && n != s.firstUnsaved() {
		return fmt.Errorf("%w: step %d", ErrStepLocked, n)
	}
	return s.enter(ctx, n-1)
}

func (s *Session) firstUnsaved() int {
	for _, step := range s.steps {
		if !s.saved[step.Number()] {
			return step.Number()
		}
	}
	return len(s.steps)
}

func (s *Session) enter(ctx context.Context, index int) error {
	s.current = index
	step := s.Current()
	if s.active == nil {
		return nil
	}
	complete, err := step.Load(ctx, s.client, s.active)
	if err != nil && !errors.Is(err, ErrNoActiveApplication) {
		return classify(step, err)
	}
	if complete {
		s.saved[step.Number()] = true
	}
	return nil
}
