package wizard

import (
	"context"

	"ethics-review/internal/models"
)

// SummaryStep (11) shows the full application and submits it.
type SummaryStep struct {
	Summary   *models.ApplicationAggregate
	Submitted *models.Application
}

func (s *SummaryStep) Number() int   { return 11 }
func (s *SummaryStep) Title() string { return "Summary" }

func (s *SummaryStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	s.Summary = agg
	return agg.IsSubmitted(), nil
}

func (s *SummaryStep) Validate(app *ActiveApplication) error {
	return requireApp(app)
}

// Save re-fetches the application with every relation and submits it.
func (s *SummaryStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return err
	}
	s.Summary = agg

	submitted, err := c.Submit(ctx, app.ID())
	if err != nil {
		return err
	}
	s.Submitted = submitted
	s.Summary.Application = *submitted
	return nil
}
