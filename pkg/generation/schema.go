package generation

import (
	"github.com/dotsetgreg/personagen/pkg/persona"
	"github.com/dotsetgreg/personagen/pkg/providers"
)

// PersonaSchema is the output-shape constraint sent with every remote
// generation request. It mirrors the persona document exactly so a
// conforming response parses without repair.
func PersonaSchema() *providers.Schema {
	no := false
	return &providers.Schema{
		Type: "object",
		Properties: map[string]*providers.Schema{
			"name": {Type: "string", Description: "The user's name"},
			"languages": {
				Type:  "array",
				Items: &providers.Schema{Type: "string"},
			},
			"preferredLanguage": {Type: "string"},
			"style": {
				Type: "object",
				Properties: map[string]*providers.Schema{
					"formality": {
						Type: "string",
						Enum: []string{
							persona.FormalityFormal,
							persona.FormalityCasual,
							persona.FormalityAdaptive,
						},
					},
					"verbosity": {
						Type: "string",
						Enum: []string{
							persona.VerbosityConcise,
							persona.VerbosityDetailed,
							persona.VerbosityBalanced,
						},
					},
					"technicalLevel": {
						Type: "string",
						Enum: []string{
							persona.TechnicalBeginner,
							persona.TechnicalIntermediate,
							persona.TechnicalAdvanced,
						},
					},
				},
				Required:             []string{"formality", "verbosity", "technicalLevel"},
				AdditionalProperties: &no,
			},
			"interests": {
				Type:  "array",
				Items: &providers.Schema{Type: "string"},
			},
			"profession": {Type: "string"},
			"currentGoals": {
				Type:     "array",
				Items:    &providers.Schema{Type: "string"},
				MaxItems: persona.MaxCurrentGoals,
			},
		},
		Required: []string{
			"name", "languages", "preferredLanguage", "style", "interests", "currentGoals",
		},
		AdditionalProperties: &no,
	}
}
