package persona

import (
	"encoding/json"
	"strings"
	"time"
)

// Enum values for the three style axes.
const (
	FormalityFormal   = "formal"
	FormalityCasual   = "casual"
	FormalityAdaptive = "adaptive"

	VerbosityConcise  = "concise"
	VerbosityDetailed = "detailed"
	VerbosityBalanced = "balanced"

	TechnicalBeginner     = "beginner"
	TechnicalIntermediate = "intermediate"
	TechnicalAdvanced     = "advanced"
)

// MaxCurrentGoals caps the currentGoals list on any persona.
const MaxCurrentGoals = 5

// DefaultLanguage is used when no locale signal is available.
const DefaultLanguage = "en"

// Style describes how generated content should be phrased for the user.
type Style struct {
	Formality      string `json:"formality" yaml:"formality"`
	Verbosity      string `json:"verbosity" yaml:"verbosity"`
	TechnicalLevel string `json:"technicalLevel" yaml:"technicalLevel"`
}

// DefaultStyle returns the style applied when a candidate omits the field.
func DefaultStyle() Style {
	return Style{
		Formality:      FormalityCasual,
		Verbosity:      VerbosityBalanced,
		TechnicalLevel: TechnicalIntermediate,
	}
}

// Persona is the synthesized profile consumed by downstream AI-context and
// ranking features. Name is the only field without a default.
type Persona struct {
	Name              string   `json:"name" yaml:"name"`
	Languages         []string `json:"languages" yaml:"languages"`
	PreferredLanguage string   `json:"preferredLanguage" yaml:"preferredLanguage"`
	Style             Style    `json:"style" yaml:"style"`
	Interests         []string `json:"interests" yaml:"interests"`
	Profession        string   `json:"profession,omitempty" yaml:"profession,omitempty"`
	CurrentGoals      []string `json:"currentGoals" yaml:"currentGoals"`
}

// Clone returns a deep copy so stored snapshots never alias caller slices.
func (p Persona) Clone() Persona {
	out := p
	out.Languages = append([]string{}, p.Languages...)
	out.Interests = append([]string{}, p.Interests...)
	out.CurrentGoals = append([]string{}, p.CurrentGoals...)
	return out
}

// Record wraps one immutable persona snapshot in the versioned history.
// Within one ID, versions form a strictly increasing, gap-free sequence
// starting at 1; records are never mutated or deleted once appended.
type Record struct {
	ID           string    `json:"id" yaml:"id"`
	Version      int       `json:"version" yaml:"version"`
	LastModified time.Time `json:"lastModified" yaml:"lastModified"`

	Persona          Persona                `json:"persona" yaml:"persona"`
	ModelPreferences map[string]string      `json:"modelPreferences" yaml:"modelPreferences"`
	CustomData       map[string]interface{} `json:"customData" yaml:"customData"`
}

// Clone deep-copies the record. CustomData goes through JSON so nested
// structures do not alias between versions.
func (r Record) Clone() Record {
	out := r
	out.Persona = r.Persona.Clone()
	out.ModelPreferences = map[string]string{}
	for k, v := range r.ModelPreferences {
		out.ModelPreferences[k] = v
	}
	out.CustomData = cloneCustomData(r.CustomData)
	return out
}

func cloneCustomData(in map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	if len(in) == 0 {
		return out
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func dedupePreserveOrder(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
