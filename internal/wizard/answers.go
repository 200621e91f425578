package wizard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ethics-review/internal/models"

	"gopkg.in/yaml.v3"
)

type form = map[string]interface{}

// Answers is a scripted run of the wizard. Section keys use the same
// camelCase field names as the API. Timestamps must be RFC 3339.
type Answers struct {
	Application      form   `yaml:"application"`
	Investigators    []form `yaml:"investigators"`
	Funding          form   `yaml:"funding"`
	ResearchOverview form   `yaml:"researchOverview"`
	Methodology      form   `yaml:"methodology"`
	ParticipantInfo  form   `yaml:"participantInfo"`
	Consent          form   `yaml:"consent"`
	Payment          form   `yaml:"payment"`
	Confidentiality  form   `yaml:"confidentiality"`
	Declaration      form   `yaml:"declaration"`
	CoInvestigators  []form `yaml:"coInvestigators"`
	Checklist        form   `yaml:"checklist"`
	// Documents maps a checklist category to a file path. Relative paths
	// are resolved against the directory of the answers file.
	Documents map[string]string `yaml:"documents"`
	Submit    bool              `yaml:"submit"`

	dir string
}

// LoadAnswers reads an answers file.
func LoadAnswers(path string) (*Answers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open answers file: %w", err)
	}
	defer f.Close()

	a, err := ReadAnswers(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	a.dir = filepath.Dir(path)
	return a, nil
}

func ReadAnswers(r io.Reader) (*Answers, error) {
	var a Answers
	if err := yaml.NewDecoder(r).Decode(&a); err != nil && err != io.EOF {
		return nil, err
	}
	return &a, nil
}

// Has reports whether the answers carry input for step n.
func (a *Answers) Has(n int) bool {
	switch n {
	case 1:
		return a.Application != nil
	case 2:
		return len(a.Investigators) > 0
	case 3:
		return a.Funding != nil
	case 4:
		return a.ResearchOverview != nil
	case 5:
		return a.Methodology != nil
	case 6:
		return a.ParticipantInfo != nil
	case 7:
		return a.Consent != nil
	case 8:
		return a.Payment != nil || a.Confidentiality != nil
	case 9:
		return a.Declaration != nil || a.Checklist != nil || len(a.CoInvestigators) > 0
	case 10:
		return len(a.Documents) > 0
	}
	return false
}

// Apply fills the form of step from the answers. Values already loaded from
// the server are kept unless the answers override them.
func (a *Answers) Apply(step Step) error {
	switch s := step.(type) {
	case *ApplicationStep:
		return decodeForm(a.Application, &s.Form)
	case *InvestigatorsStep:
		for i, f := range a.Investigators {
			var inv models.Investigator
			if err := decodeForm(f, &inv); err != nil {
				return fmt.Errorf("investigators[%d]: %w", i, err)
			}
			s.Add(inv)
		}
	case *FundingStep:
		return decodeForm(a.Funding, &s.Form)
	case *ResearchOverviewStep:
		return decodeForm(a.ResearchOverview, &s.Form)
	case *MethodologyStep:
		return decodeForm(a.Methodology, &s.Form)
	case *ParticipantInfoStep:
		return decodeForm(a.ParticipantInfo, &s.Form)
	case *ConsentStep:
		consent := a.Consent
		if langs, ok := consent["languagesProvided"].(string); ok {
			consent = copyForm(consent)
			consent["languagesProvided"] = ParseLanguages(langs)
		}
		return decodeForm(consent, &s.Form)
	case *PaymentConfidentialityStep:
		if err := decodeForm(a.Payment, &s.Payment); err != nil {
			return fmt.Errorf("payment: %w", err)
		}
		if err := decodeForm(a.Confidentiality, &s.Confidentiality); err != nil {
			return fmt.Errorf("confidentiality: %w", err)
		}
	case *DeclarationStep:
		if err := decodeForm(a.Declaration, &s.Declaration); err != nil {
			return fmt.Errorf("declaration: %w", err)
		}
		if len(a.CoInvestigators) > 0 {
			s.CoInvestigators = make([]models.CoInvestigator, len(a.CoInvestigators))
			for i, f := range a.CoInvestigators {
				if err := decodeForm(f, &s.CoInvestigators[i]); err != nil {
					return fmt.Errorf("coInvestigators[%d]: %w", i, err)
				}
			}
		}
		if err := decodeForm(a.Checklist, &s.Checklist); err != nil {
			return fmt.Errorf("checklist: %w", err)
		}
	case *DocumentsStep:
		for _, d := range models.ChecklistDocuments {
			path, ok := a.Documents[d.Key]
			if !ok {
				continue
			}
			s.Select(a.document(d.Key, path))
		}
		for key, path := range a.Documents {
			if !knownCategory(key) {
				s.Select(a.document(key, path))
			}
		}
	}
	return nil
}

func (a *Answers) document(key, path string) Document {
	if !filepath.IsAbs(path) && a.dir != "" {
		path = filepath.Join(a.dir, path)
	}
	return Document{
		Key:      key,
		Name:     filepath.Base(path),
		Filename: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// decodeForm overlays f onto out using the JSON field names of the model.
func decodeForm(f form, out any) error {
	if f == nil {
		return nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func copyForm(f form) form {
	out := make(form, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
