package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ethics-review/internal/common/validation"
	"ethics-review/internal/models"
)

// Step is one page of the application wizard.
type Step interface {
	Number() int
	Title() string
	// Load pre-populates the form from the server and reports whether the
	// step is already complete. A missing section is not an error.
	Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error)
	// Validate checks the form without any network call. It returns
	// *FieldErrors on failure.
	Validate(app *ActiveApplication) error
	Save(ctx context.Context, c EntityClient, app *ActiveApplication) error
}

// creator is implemented by the step that creates the application.
type creator interface {
	Create(ctx context.Context, c EntityClient) (*ActiveApplication, error)
}

// DefaultSteps returns steps 1 to 11 in order.
func DefaultSteps() []Step {
	return []Step{
		&ApplicationStep{},
		&InvestigatorsStep{},
		NewFundingStep(),
		NewResearchOverviewStep(),
		NewMethodologyStep(),
		NewParticipantInfoStep(),
		NewConsentStep(),
		&PaymentConfidentialityStep{},
		&DeclarationStep{},
		&DocumentsStep{},
		&SummaryStep{},
	}
}

var serverOwned = []string{"id", "createdAt", "updatedAt", "status"}

// validateForm runs the shared section schema against a form. Error paths
// are prefixed with prefix when it is not empty.
func validateForm(kind validation.Kind, form any, prefix string, into map[string]string) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for _, k := range serverOwned {
		delete(doc, k)
	}

	result, err := validation.Default().Validate(kind, doc)
	if err != nil {
		return err
	}
	for path, msg := range result.Fields() {
		if prefix != "" {
			path = prefix + "." + path
		}
		into[path] = msg
	}
	return nil
}

func fieldErrors(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &FieldErrors{Fields: fields}
}

func requireApp(app *ActiveApplication) error {
	if app == nil {
		return ErrNoActiveApplication
	}
	return nil
}

// ApplicationStep (1) creates the application or updates it on a resumed
// session.
type ApplicationStep struct {
	Form models.Application
}

func (s *ApplicationStep) Number() int   { return 1 }
func (s *ApplicationStep) Title() string { return "Application" }

func (s *ApplicationStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if app == nil {
		return false, nil
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	s.Form = agg.Application
	return true, nil
}

func (s *ApplicationStep) Validate(*ActiveApplication) error {
	fields := make(map[string]string)
	if err := validateForm(validation.KindApplication, &s.Form, "", fields); err != nil {
		return err
	}
	return fieldErrors(fields)
}

func (s *ApplicationStep) Create(ctx context.Context, c EntityClient) (*ActiveApplication, error) {
	created, err := c.CreateApplication(ctx, &s.Form)
	if err != nil {
		return nil, err
	}
	s.Form = *created
	return newActiveApplication(created), nil
}

func (s *ApplicationStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	updated, err := c.UpdateApplication(ctx, app.ID(), &s.Form)
	if err != nil {
		return err
	}
	s.Form = *updated
	return nil
}

// InvestigatorsStep (2) is add-only. Current holds the stored
// investigators and Pending the ones entered in this session.
type InvestigatorsStep struct {
	Current []models.Investigator
	Pending []models.Investigator
}

func (s *InvestigatorsStep) Number() int   { return 2 }
func (s *InvestigatorsStep) Title() string { return "Investigators" }

func (s *InvestigatorsStep) Add(inv models.Investigator) {
	s.Pending = append(s.Pending, inv)
}

func (s *InvestigatorsStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	s.Current = agg.Investigators
	return len(s.Current) > 0 && len(s.Pending) == 0, nil
}

func (s *InvestigatorsStep) Validate(app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	fields := make(map[string]string)
	if len(s.Current)+len(s.Pending) == 0 {
		fields["investigators"] = "At least one investigator is required"
	}
	for i := range s.Pending {
		s.Pending[i].ApplicationID = app.ID()
		if err := validateForm(validation.KindInvestigator, &s.Pending[i], fmt.Sprintf("investigators[%d]", i), fields); err != nil {
			return err
		}
	}
	return fieldErrors(fields)
}

// Save creates the pending investigators one by one. Investigators created
// before a failure are moved to Current so a retry does not duplicate them.
func (s *InvestigatorsStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	for len(s.Pending) > 0 {
		inv := s.Pending[0]
		inv.ApplicationID = app.ID()
		created, err := c.CreateInvestigator(ctx, &inv)
		if err != nil {
			return err
		}
		s.Current = append(s.Current, *created)
		s.Pending = s.Pending[1:]
	}
	return nil
}

type sectionForm[T any] interface {
	*T
	SetApplicationID(id string)
}

// SectionStep edits one singleton section (steps 3 to 7).
type SectionStep[T any, PT sectionForm[T]] struct {
	number   int
	title    string
	kind     validation.Kind
	resource string
	pick     func(*models.ApplicationAggregate) *T

	Form T
}

func (s *SectionStep[T, PT]) Number() int   { return s.number }
func (s *SectionStep[T, PT]) Title() string { return s.title }

func (s *SectionStep[T, PT]) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	if rec := s.pick(agg); rec != nil {
		s.Form = *rec
		return true, nil
	}
	return false, nil
}

func (s *SectionStep[T, PT]) Validate(app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	PT(&s.Form).SetApplicationID(app.ID())
	fields := make(map[string]string)
	if err := validateForm(s.kind, &s.Form, "", fields); err != nil {
		return err
	}
	return fieldErrors(fields)
}

func (s *SectionStep[T, PT]) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	PT(&s.Form).SetApplicationID(app.ID())
	var saved T
	if err := c.SaveSection(ctx, s.resource, &s.Form, &saved); err != nil {
		return err
	}
	s.Form = saved
	return nil
}

type (
	FundingStep          = SectionStep[models.Funding, *models.Funding]
	ResearchOverviewStep = SectionStep[models.ResearchOverview, *models.ResearchOverview]
	MethodologyStep      = SectionStep[models.Methodology, *models.Methodology]
	ParticipantInfoStep  = SectionStep[models.ParticipantInfo, *models.ParticipantInfo]
	ConsentStep          = SectionStep[models.Consent, *models.Consent]
)

func NewFundingStep() *FundingStep {
	return &FundingStep{
		number: 3, title: "Funding", kind: validation.KindFunding, resource: "funding",
		pick: func(a *models.ApplicationAggregate) *models.Funding { return a.Funding },
	}
}

func NewResearchOverviewStep() *ResearchOverviewStep {
	return &ResearchOverviewStep{
		number: 4, title: "Research overview", kind: validation.KindResearchOverview, resource: "research-overview",
		pick: func(a *models.ApplicationAggregate) *models.ResearchOverview { return a.ResearchOverview },
	}
}

func NewMethodologyStep() *MethodologyStep {
	return &MethodologyStep{
		number: 5, title: "Methodology", kind: validation.KindMethodology, resource: "methodology",
		pick: func(a *models.ApplicationAggregate) *models.Methodology { return a.Methodology },
	}
}

func NewParticipantInfoStep() *ParticipantInfoStep {
	return &ParticipantInfoStep{
		number: 6, title: "Participant info", kind: validation.KindParticipant, resource: "participants",
		pick: func(a *models.ApplicationAggregate) *models.ParticipantInfo { return a.ParticipantInfo },
	}
}

func NewConsentStep() *ConsentStep {
	return &ConsentStep{
		number: 7, title: "Consent", kind: validation.KindConsent, resource: "consent",
		pick: func(a *models.ApplicationAggregate) *models.Consent { return a.Consent },
	}
}

// ParseLanguages splits comma separated input, trims each entry and drops
// empty ones.
func ParseLanguages(input string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(input, ",") {
		if lang := strings.TrimSpace(part); lang != "" {
			out = append(out, lang)
		}
	}
	return out
}

// PaymentConfidentialityStep (8) saves both sections in one transaction.
type PaymentConfidentialityStep struct {
	Payment         models.Payment
	Confidentiality models.Confidentiality
}

func (s *PaymentConfidentialityStep) Number() int   { return 8 }
func (s *PaymentConfidentialityStep) Title() string { return "Payment and confidentiality" }

func (s *PaymentConfidentialityStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	if agg.Payment != nil {
		s.Payment = *agg.Payment
	}
	if agg.Confidentiality != nil {
		s.Confidentiality = *agg.Confidentiality
	}
	return agg.Payment != nil && agg.Confidentiality != nil, nil
}

func (s *PaymentConfidentialityStep) Validate(app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	s.Payment.ApplicationID = app.ID()
	s.Confidentiality.ApplicationID = app.ID()

	fields := make(map[string]string)
	if err := validateForm(validation.KindPayment, &s.Payment, "payment", fields); err != nil {
		return err
	}
	if err := validateForm(validation.KindConfidentiality, &s.Confidentiality, "confidentiality", fields); err != nil {
		return err
	}
	return fieldErrors(fields)
}

func (s *PaymentConfidentialityStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	saved, err := c.SaveSections(ctx, app.ID(), SectionBatch{
		Payment:         &s.Payment,
		Confidentiality: &s.Confidentiality,
	})
	if err != nil {
		return err
	}
	if saved.Payment != nil {
		s.Payment = *saved.Payment
	}
	if saved.Confidentiality != nil {
		s.Confidentiality = *saved.Confidentiality
	}
	return nil
}

// DeclarationStep (9) saves the declaration, its co-investigators and the
// checklist flags in one transaction.
type DeclarationStep struct {
	Declaration     models.Declaration
	CoInvestigators []models.CoInvestigator
	Checklist       models.Checklist
}

func (s *DeclarationStep) Number() int   { return 9 }
func (s *DeclarationStep) Title() string { return "Declaration" }

func (s *DeclarationStep) Load(ctx context.Context, c EntityClient, app *ActiveApplication) (bool, error) {
	if err := requireApp(app); err != nil {
		return false, err
	}
	agg, err := c.GetApplication(ctx, app.ID())
	if err != nil {
		return false, err
	}
	if len(agg.Declarations) > 0 {
		s.Declaration = agg.Declarations[0]
		s.CoInvestigators = agg.CoInvestigators
	}
	if len(agg.Checklists) > 0 {
		s.Checklist = agg.Checklists[0]
	}
	return len(agg.Declarations) > 0 && len(agg.Checklists) > 0, nil
}

// placeholderDeclarationID satisfies the co-investigator schema before the
// declaration has an id. The server attaches them to the real declaration.
const placeholderDeclarationID = "00000000-0000-0000-0000-000000000000"

func (s *DeclarationStep) Validate(app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	s.Declaration.ApplicationID = app.ID()
	s.Checklist.ApplicationID = app.ID()

	fields := make(map[string]string)
	if err := validateForm(validation.KindDeclaration, &s.Declaration, "declaration", fields); err != nil {
		return err
	}
	for i := range s.CoInvestigators {
		co := s.CoInvestigators[i]
		if co.DeclarationID == "" {
			co.DeclarationID = placeholderDeclarationID
		}
		if err := validateForm(validation.KindCoInvestigator, &co, fmt.Sprintf("coInvestigators[%d]", i), fields); err != nil {
			return err
		}
	}
	if err := validateForm(validation.KindChecklist, &s.Checklist, "checklist", fields); err != nil {
		return err
	}
	return fieldErrors(fields)
}

func (s *DeclarationStep) Save(ctx context.Context, c EntityClient, app *ActiveApplication) error {
	if err := requireApp(app); err != nil {
		return err
	}
	coInvestigators := s.CoInvestigators
	if coInvestigators == nil {
		coInvestigators = []models.CoInvestigator{}
	}
	saved, err := c.SaveSections(ctx, app.ID(), SectionBatch{
		Declaration:     &s.Declaration,
		CoInvestigators: coInvestigators,
		Checklist:       &s.Checklist,
	})
	if err != nil {
		return err
	}
	if saved.Declaration != nil {
		s.Declaration = *saved.Declaration
	}
	s.CoInvestigators = saved.CoInvestigators
	if saved.Checklist != nil {
		s.Checklist = *saved.Checklist
	}
	return nil
}
