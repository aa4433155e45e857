package store

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/personagen/pkg/persona"
)

// applyFieldPath mutates one field of a cloned record. Paths address the
// persona document directly ("name", "style.formality", "interests", ...);
// the prefixes "modelPreferences." and "customData." address the two side
// maps, with customData paths creating intermediate objects as needed.
func applyFieldPath(rec *persona.Record, path string, value interface{}) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return &persona.SchemaError{Field: "fieldPath", Reason: "empty"}
	}

	if rest, ok := strings.CutPrefix(path, "modelPreferences."); ok {
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		if rec.ModelPreferences == nil {
			rec.ModelPreferences = map[string]string{}
		}
		rec.ModelPreferences[rest] = s
		return nil
	}
	if rest, ok := strings.CutPrefix(path, "customData."); ok {
		if rec.CustomData == nil {
			rec.CustomData = map[string]interface{}{}
		}
		setNested(rec.CustomData, strings.Split(rest, "."), value)
		return nil
	}

	switch path {
	case "name":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Name = s
	case "preferredLanguage":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.PreferredLanguage = s
	case "profession":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Profession = s
	case "style.formality":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Style.Formality = s
	case "style.verbosity":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Style.Verbosity = s
	case "style.technicalLevel":
		s, err := asString(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Style.TechnicalLevel = s
	case "languages":
		ss, err := asStringSlice(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Languages = ss
	case "interests":
		ss, err := asStringSlice(path, value)
		if err != nil {
			return err
		}
		rec.Persona.Interests = ss
	case "currentGoals":
		ss, err := asStringSlice(path, value)
		if err != nil {
			return err
		}
		rec.Persona.CurrentGoals = ss
	default:
		return &persona.SchemaError{Field: path, Reason: "unknown field path"}
	}

	return persona.Validate(&rec.Persona)
}

func setNested(m map[string]interface{}, segments []string, value interface{}) {
	for len(segments) > 1 {
		child, ok := m[segments[0]].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			m[segments[0]] = child
		}
		m = child
		segments = segments[1:]
	}
	m[segments[0]] = value
}

func asString(path string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", &persona.SchemaError{Field: path, Reason: fmt.Sprintf("expected string, got %T", value)}
	}
	return s, nil
}

func asStringSlice(path string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &persona.SchemaError{Field: path, Reason: fmt.Sprintf("expected string element, got %T", item)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &persona.SchemaError{Field: path, Reason: fmt.Sprintf("expected string list, got %T", value)}
	}
}
