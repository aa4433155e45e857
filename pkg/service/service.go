// Package service wires normalization, generation and storage into the
// persona synthesis flow used by the CLI and the scheduled refresh worker.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/generation"
	"github.com/dotsetgreg/personagen/pkg/logger"
	"github.com/dotsetgreg/personagen/pkg/persona"
	"github.com/dotsetgreg/personagen/pkg/providers"
	"github.com/dotsetgreg/personagen/pkg/store"
)

// Service is the orchestrator for persona synthesis, retrieval and the
// versioned record operations.
type Service struct {
	store        store.Store
	orchestrator *generation.Orchestrator

	refreshSchedule    string
	refreshConcurrency int
	cron               *gronx.Gronx

	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Options configures New. Store is required; a nil Client disables the
// remote generation path.
type Options struct {
	Store       store.Store
	Client      providers.Client
	MaxRetries  int
	Temperature float64

	RefreshEnabled     bool
	RefreshSchedule    string
	RefreshConcurrency int
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("persona store is required")
	}
	if opts.RefreshConcurrency <= 0 {
		opts.RefreshConcurrency = 4
	}

	svc := &Service{
		store:              opts.Store,
		orchestrator:       generation.New(opts.Client, opts.MaxRetries, opts.Temperature),
		refreshSchedule:    opts.RefreshSchedule,
		refreshConcurrency: opts.RefreshConcurrency,
		stopCh:             make(chan struct{}),
	}

	if opts.RefreshEnabled {
		svc.cron = gronx.New()
		if !svc.cron.IsValid(opts.RefreshSchedule) {
			return nil, fmt.Errorf("invalid refresh schedule %q", opts.RefreshSchedule)
		}
		svc.wg.Add(1)
		go svc.runRefreshWorker()
	}
	return svc, nil
}

func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// SynthesizeRequest is one end-to-end synthesis call.
type SynthesizeRequest struct {
	Identity    store.Identity
	RawAccounts map[string]interface{}

	FocusAreas         []string
	CustomInstructions string
	Answers            []persona.FocusAnswer
	DisplayName        string

	ModelPreferences map[string]string
	CustomData       map[string]interface{}
}

// Synthesize normalizes the raw accounts, generates a persona and appends
// it as a new version. Malformed account payloads and storage failures are
// the only error paths; generation itself always completes.
func (s *Service) Synthesize(ctx context.Context, req SynthesizeRequest) (persona.Record, error) {
	bundle, err := accounts.Normalize(req.RawAccounts)
	if err != nil {
		return persona.Record{}, fmt.Errorf("normalize accounts: %w", err)
	}
	if _, err := s.store.EnsureUser(ctx, req.Identity); err != nil {
		return persona.Record{}, err
	}
	if err := s.store.SaveAccountBundle(ctx, req.Identity, bundle); err != nil {
		return persona.Record{}, err
	}

	return s.generateAndAppend(ctx, req.Identity, generation.Params{
		Bundle:             bundle,
		FocusAreas:         req.FocusAreas,
		CustomInstructions: req.CustomInstructions,
		Answers:            req.Answers,
		DisplayName:        req.DisplayName,
	}, req.ModelPreferences, req.CustomData)
}

// Refresh re-synthesizes an identity's persona from its retained account
// bundle, carrying the current record's preferences and custom data over.
func (s *Service) Refresh(ctx context.Context, identity store.Identity) (persona.Record, error) {
	bundle, err := s.store.GetAccountBundle(ctx, identity)
	if err != nil {
		return persona.Record{}, err
	}

	var (
		prefs  map[string]string
		custom map[string]interface{}
	)
	if current, err := s.store.GetCurrent(ctx, identity); err == nil {
		prefs = current.ModelPreferences
		custom = current.CustomData
	} else if !errors.Is(err, store.ErrNotFound) {
		return persona.Record{}, err
	}

	return s.generateAndAppend(ctx, identity, generation.Params{Bundle: bundle}, prefs, custom)
}

func (s *Service) generateAndAppend(ctx context.Context, identity store.Identity,
	params generation.Params,
	prefs map[string]string, custom map[string]interface{}) (persona.Record, error) {

	p, remote := s.orchestrator.Generate(ctx, params)
	res, err := s.store.Upsert(ctx, identity, p, prefs, custom)
	if err != nil {
		return persona.Record{}, err
	}
	logger.InfoCF("service", "persona version appended", map[string]interface{}{
		"persona_id": res.ID,
		"version":    res.Version,
		"remote":     remote,
	})
	return s.store.GetByID(ctx, res.ID)
}

// Record operations pass through to the store.

func (s *Service) GetCurrent(ctx context.Context, identity store.Identity) (persona.Record, error) {
	return s.store.GetCurrent(ctx, identity)
}

func (s *Service) GetByID(ctx context.Context, id string) (persona.Record, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetHistory(ctx context.Context, identity store.Identity) ([]persona.Record, error) {
	return s.store.GetHistory(ctx, identity)
}

func (s *Service) UpdateField(ctx context.Context, ref, fieldPath string, value interface{}) (store.AppendResult, error) {
	return s.store.UpdateField(ctx, ref, fieldPath, value)
}

func (s *Service) Rollback(ctx context.Context, id string, toVersion int) (store.AppendResult, error) {
	return s.store.Rollback(ctx, id, toVersion)
}

// Export resolves ref as an identity (external id or email) first, then as
// a persona id, and serializes the latest record in the requested format.
func (s *Service) Export(ctx context.Context, ref, format string) (string, error) {
	rec, err := s.store.GetCurrent(ctx, store.IdentityFromRef(ref))
	if errors.Is(err, store.ErrNotFound) {
		rec, err = s.store.GetByID(ctx, ref)
	}
	if err != nil {
		return "", err
	}
	return persona.Export(rec, format)
}
