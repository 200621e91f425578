package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Kind identifies the record type a schema applies to.
type Kind string

const (
	KindApplication      Kind = "application"
	KindInvestigator     Kind = "investigator"
	KindFunding          Kind = "funding"
	KindResearchOverview Kind = "researchOverview"
	KindMethodology      Kind = "methodology"
	KindParticipant      Kind = "participantInfo"
	KindConsent          Kind = "consent"
	KindPayment          Kind = "payment"
	KindConfidentiality  Kind = "confidentiality"
	KindDeclaration      Kind = "declaration"
	KindCoInvestigator   Kind = "coInvestigator"
	KindChecklist        Kind = "checklist"
)

var schemaFiles = map[Kind]string{
	KindApplication:      "schemas/application.json",
	KindInvestigator:     "schemas/investigator.json",
	KindFunding:          "schemas/funding.json",
	KindResearchOverview: "schemas/research_overview.json",
	KindMethodology:      "schemas/methodology.json",
	KindParticipant:      "schemas/participant.json",
	KindConsent:          "schemas/consent.json",
	KindPayment:          "schemas/payment.json",
	KindConfidentiality:  "schemas/confidentiality.json",
	KindDeclaration:      "schemas/declaration.json",
	KindCoInvestigator:   "schemas/co_investigator.json",
	KindChecklist:        "schemas/checklist.json",
}

// Kinds returns every kind that has a schema, sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(schemaFiles))
	for k := range schemaFiles {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator checks records against the embedded JSON schemas. Partial
// schemas drop required properties and conditional rules and are used for
// patches before they are merged onto a stored record.
type Validator struct {
	full    map[Kind]*gojsonschema.Schema
	partial map[Kind]*gojsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	v := &Validator{
		full:    make(map[Kind]*gojsonschema.Schema, len(schemaFiles)),
		partial: make(map[Kind]*gojsonschema.Schema, len(schemaFiles)),
	}

	for kind, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}

		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", file, err)
		}

		full, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		v.full[kind] = full

		partialDoc := make(map[string]interface{}, len(doc))
		for k, val := range doc {
			if k == "required" || k == "allOf" {
				continue
			}
			partialDoc[k] = val
		}
		partial, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(partialDoc))
		if err != nil {
			return nil, fmt.Errorf("compile partial schema %s: %w", file, err)
		}
		v.partial[kind] = partial
	}

	return v, nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a process-wide validator compiled on first use.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New()
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultValidator
}

// Validate checks a complete record. doc may be a struct or a decoded map.
func (v *Validator) Validate(kind Kind, doc interface{}) (*ValidationResult, error) {
	schema, ok := v.full[kind]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", kind)
	}
	return validate(schema, doc)
}

// ValidatePartial checks only the fields present in doc.
func (v *Validator) ValidatePartial(kind Kind, doc interface{}) (*ValidationResult, error) {
	schema, ok := v.partial[kind]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", kind)
	}
	return validate(schema, doc)
}

func validate(schema *gojsonschema.Schema, doc interface{}) (*ValidationResult, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		switch desc.Type() {
		case "condition_then", "condition_else", "number_all_of":
			continue
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldPath(desc),
			Message: message(desc),
			Code:    desc.Type(),
		})
	}
	return out, nil
}

func fieldPath(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		property, _ := desc.Details()["property"].(string)
		if field == "(root)" || field == "" {
			return property
		}
		return field + "." + property
	}
	if field == "(root)" {
		return ""
	}
	return field
}

func message(desc gojsonschema.ResultError) string {
	details := desc.Details()
	switch desc.Type() {
	case "required", "number_not":
		return "Required"
	case "string_gte":
		return fmt.Sprintf("String must contain at least %v character(s)", details["min"])
	case "number_gt":
		return fmt.Sprintf("Number must be greater than %s", formatNumber(details["min"]))
	case "array_min_items":
		return fmt.Sprintf("Array must contain at least %v element(s)", details["min"])
	case "enum":
		return fmt.Sprintf("Invalid enum value. Expected %v", details["allowed"])
	case "invalid_type":
		return fmt.Sprintf("Expected %v, received %v", details["expected"], details["given"])
	case "format":
		switch details["format"] {
		case "date-time":
			return "Invalid datetime"
		case "uuid":
			return "Invalid uuid"
		}
	case "does_not_match_pattern":
		return "Invalid file reference"
	}
	return desc.Description()
}

func formatNumber(v interface{}) string {
	switch n := v.(type) {
	case *big.Rat:
		return n.RatString()
	case *big.Float:
		return n.Text('f', -1)
	}
	return fmt.Sprint(v)
}

// Fields flattens the errors into a field path to message map, keeping
// the first message reported for each path.
func (r *ValidationResult) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, exists := out[e.Field]; !exists {
			out[e.Field] = e.Message
		}
	}
	return out
}

// GetErrorMessages returns all error messages as a slice of strings
func (r *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		if err.Field == "" {
			messages[i] = err.Message
			continue
		}
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors returns true if there are validation errors
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// GetErrorsForField returns errors reported at a field or below it
func (r *ValidationResult) GetErrorsForField(fieldName string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range r.Errors {
		if err.Field == fieldName || strings.HasPrefix(err.Field, fieldName+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}
