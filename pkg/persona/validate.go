package persona

import "fmt"

// SchemaError reports a persona candidate that cannot be repaired by
// applying defaults, such as a missing name or an out-of-range enum value.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("persona schema: field %q: %s", e.Field, e.Reason)
}

var validEnums = map[string]map[string]bool{
	"style.formality": {
		FormalityFormal: true, FormalityCasual: true, FormalityAdaptive: true,
	},
	"style.verbosity": {
		VerbosityConcise: true, VerbosityDetailed: true, VerbosityBalanced: true,
	},
	"style.technicalLevel": {
		TechnicalBeginner: true, TechnicalIntermediate: true, TechnicalAdvanced: true,
	},
}

// Validate repairs a persona candidate in place and rejects what defaults
// cannot fix. Missing languages, preferredLanguage, style axes, interests
// and goals are filled with defaults; an empty name or an enum value
// outside its allowed set yields a *SchemaError.
func Validate(p *Persona) error {
	if p == nil {
		return &SchemaError{Field: "persona", Reason: "missing"}
	}
	if p.Name == "" {
		return &SchemaError{Field: "name", Reason: "required"}
	}

	if p.Style.Formality == "" {
		p.Style.Formality = FormalityCasual
	}
	if p.Style.Verbosity == "" {
		p.Style.Verbosity = VerbosityBalanced
	}
	if p.Style.TechnicalLevel == "" {
		p.Style.TechnicalLevel = TechnicalIntermediate
	}
	for field, value := range map[string]string{
		"style.formality":      p.Style.Formality,
		"style.verbosity":      p.Style.Verbosity,
		"style.technicalLevel": p.Style.TechnicalLevel,
	} {
		if !validEnums[field][value] {
			return &SchemaError{Field: field, Reason: fmt.Sprintf("invalid value %q", value)}
		}
	}

	p.Languages = dedupePreserveOrder(p.Languages)
	if len(p.Languages) == 0 {
		p.Languages = []string{DefaultLanguage}
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = p.Languages[0]
	}
	p.Interests = dedupePreserveOrder(p.Interests)
	if p.Interests == nil {
		p.Interests = []string{}
	}
	p.CurrentGoals = dedupePreserveOrder(p.CurrentGoals)
	if len(p.CurrentGoals) > MaxCurrentGoals {
		p.CurrentGoals = p.CurrentGoals[:MaxCurrentGoals]
	}
	if p.CurrentGoals == nil {
		p.CurrentGoals = []string{}
	}
	return nil
}
