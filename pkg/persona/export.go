package persona

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Export formats consumed by downstream surfaces.
const (
	FormatJSON      = "json"
	FormatYAML      = "yaml"
	FormatLLMPrompt = "llm_prompt"
)

// Export serializes a record for a downstream consumer. json emits the
// record verbatim, yaml a key/value rendering, llm_prompt a one-line
// system-prompt preamble built from the persona fields.
func Export(rec Record, format string) (string, error) {
	switch format {
	case FormatJSON:
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return "", fmt.Errorf("export json: %w", err)
		}
		return string(raw), nil
	case FormatYAML:
		raw, err := yaml.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("export yaml: %w", err)
		}
		return string(raw), nil
	case FormatLLMPrompt:
		return PromptPreamble(rec.Persona), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", format)
	}
}

// PromptPreamble renders the persona as a short instruction block for
// seeding model conversations. Clauses for absent fields are omitted.
func PromptPreamble(p Persona) string {
	head := "You are assisting " + p.Name
	s := p.Style
	if s.Formality != "" && s.Verbosity != "" && s.TechnicalLevel != "" {
		head += fmt.Sprintf(" who prefers %s, %s communication at %s level",
			s.Formality, s.Verbosity, s.TechnicalLevel)
	}
	parts := []string{head}
	if len(p.Languages) > 0 {
		clause := "Languages: " + strings.Join(p.Languages, ", ")
		if p.PreferredLanguage != "" {
			clause += fmt.Sprintf(" (preferred: %s)", p.PreferredLanguage)
		}
		parts = append(parts, clause)
	}
	if len(p.CurrentGoals) > 0 {
		parts = append(parts, "Current goals: "+strings.Join(p.CurrentGoals, ", "))
	}
	return strings.Join(parts, ". ") + "."
}
