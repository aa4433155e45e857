package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/logger"
	"github.com/dotsetgreg/personagen/pkg/persona"
	"github.com/dotsetgreg/personagen/pkg/providers"
)

const (
	// DefaultMaxRetries bounds remote attempts before falling back.
	DefaultMaxRetries = 3
	// DefaultTemperature keeps structured output near-deterministic.
	DefaultTemperature = 0.2
)

const systemPrompt = "You synthesize a user persona from connected-account data. " +
	"Respond with a single JSON object matching the requested schema. " +
	"Derive interests and communication style from the account signals provided."

// Orchestrator drives persona synthesis: a bounded-retry remote attempt
// with schema validation, then the deterministic rule fallback. Generate
// never returns an error; storage is the caller's concern.
type Orchestrator struct {
	client      providers.Client
	maxRetries  int
	temperature float64

	sleep func(time.Duration)
}

// Params is one synthesis request.
type Params struct {
	Bundle             *accounts.Bundle
	FocusAreas         []string
	CustomInstructions string
	Answers            []persona.FocusAnswer

	// DisplayName, when set, always overwrites the generated name.
	DisplayName string
}

// New builds an Orchestrator. A nil client disables the remote path and
// every request resolves through the rule generator.
func New(client providers.Client, maxRetries int, temperature float64) *Orchestrator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Orchestrator{
		client:      client,
		maxRetries:  maxRetries,
		temperature: temperature,
		sleep:       time.Sleep,
	}
}

// Generate synthesizes a schema-valid persona. The second return reports
// whether the remote path produced it; false means the deterministic
// fallback did. It never fails: remote errors are retried with exponential
// backoff and exhaustion switches strategy instead of surfacing.
func (o *Orchestrator) Generate(ctx context.Context, p Params) (persona.Persona, bool) {
	if remote, ok := o.tryRemote(ctx, p); ok {
		return remote, true
	}

	fallback := persona.Derive(p.Bundle, p.FocusAreas)
	if p.DisplayName != "" {
		fallback.Name = p.DisplayName
	}
	if err := persona.Validate(&fallback); err != nil {
		// Rule output is schema-valid by construction; reaching this
		// is a defect in the rule generator, not a runtime case.
		logger.ErrorCF("generation", "rule generator produced invalid persona", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return fallback, false
}

func (o *Orchestrator) tryRemote(ctx context.Context, p Params) (persona.Persona, bool) {
	if o.client == nil {
		return persona.Persona{}, false
	}

	built := persona.Build(persona.BuildInput{
		Bundle:             p.Bundle,
		FocusAreas:         p.FocusAreas,
		CustomInstructions: p.CustomInstructions,
		Answers:            p.Answers,
		DisplayName:        p.DisplayName,
	})

	for attempt := 0; attempt < o.maxRetries; attempt++ {
		candidate, err := o.attempt(ctx, built.Prompt, p.DisplayName)
		if err == nil {
			logger.InfoCF("generation", "remote synthesis succeeded", map[string]interface{}{
				"attempt":  attempt + 1,
				"strategy": string(built.Strategy),
			})
			return candidate, true
		}
		logger.WarnCF("generation", "remote synthesis attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		if attempt < o.maxRetries-1 {
			o.sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}

	logger.InfoCF("generation", "remote attempts exhausted, using rule fallback", map[string]interface{}{
		"attempts": o.maxRetries,
	})
	return persona.Persona{}, false
}

func (o *Orchestrator) attempt(ctx context.Context, prompt, displayName string) (persona.Persona, error) {
	content, err := o.client.Complete(ctx, providers.CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		SchemaName:  "persona",
		Schema:      PersonaSchema(),
		Temperature: o.temperature,
	})
	if err != nil {
		return persona.Persona{}, err
	}

	var candidate persona.Persona
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		return persona.Persona{}, fmt.Errorf("decode persona payload: %w", err)
	}
	if displayName != "" {
		candidate.Name = displayName
	}
	if err := persona.Validate(&candidate); err != nil {
		return persona.Persona{}, fmt.Errorf("validate persona payload: %w", err)
	}
	return candidate, nil
}
