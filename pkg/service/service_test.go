package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/persona"
	"github.com/dotsetgreg/personagen/pkg/providers"
	"github.com/dotsetgreg/personagen/pkg/store"
)

type scriptedClient struct {
	response string
	err      error
	calls    int
}

func (c *scriptedClient) Complete(context.Context, providers.CompletionRequest) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func rawAccounts(t *testing.T, payload string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode raw accounts: %v", err)
	}
	return raw
}

const sampleAccounts = `{
	"code": {
		"login": "dana",
		"displayName": "Dana Reyes",
		"bio": "software engineer",
		"repos": [{"name": "svc", "language": "Go", "stars": 12}]
	}
}`

func newTestService(t *testing.T, client providers.Client) *Service {
	t.Helper()
	svc, err := New(Options{Store: store.NewMemoryStore(), Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestSynthesizeFallbackPath(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := store.Identity{ExternalID: "ext-1"}

	rec, err := svc.Synthesize(ctx, SynthesizeRequest{
		Identity:         id,
		RawAccounts:      rawAccounts(t, sampleAccounts),
		ModelPreferences: map[string]string{"chat": "default"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}
	if rec.Persona.Name != "Dana Reyes" {
		t.Fatalf("name = %q", rec.Persona.Name)
	}
	if rec.Persona.Profession != "Engineer" {
		t.Fatalf("profession = %q", rec.Persona.Profession)
	}
	if err := persona.Validate(&rec.Persona); err != nil {
		t.Fatalf("stored persona invalid: %v", err)
	}

	// The normalized bundle is retained for later refresh.
	bundle, err := svc.store.GetAccountBundle(ctx, id)
	if err != nil {
		t.Fatalf("GetAccountBundle: %v", err)
	}
	if bundle.Code == nil || bundle.Code.Login != "dana" {
		t.Fatalf("bundle = %+v", bundle)
	}
}

func TestSynthesizeRemotePath(t *testing.T) {
	client := &scriptedClient{response: `{"name":"Dana","languages":["en"],` +
		`"preferredLanguage":"en","style":{"formality":"formal","verbosity":"concise",` +
		`"technicalLevel":"advanced"},"interests":["Go"],"currentGoals":["Ship"]}`}
	svc := newTestService(t, client)

	rec, err := svc.Synthesize(context.Background(), SynthesizeRequest{
		Identity:    store.Identity{ExternalID: "ext-1"},
		RawAccounts: rawAccounts(t, sampleAccounts),
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rec.Persona.Style.Formality != "formal" {
		t.Fatalf("persona = %+v", rec.Persona)
	}
	if client.calls != 1 {
		t.Fatalf("client calls = %d", client.calls)
	}
}

func TestSynthesizeRemoteFailureStillSucceeds(t *testing.T) {
	client := &scriptedClient{err: errors.New("service down")}
	svc, err := New(Options{Store: store.NewMemoryStore(), Client: client, MaxRetries: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	rec, err := svc.Synthesize(context.Background(), SynthesizeRequest{
		Identity:    store.Identity{ExternalID: "ext-1"},
		RawAccounts: rawAccounts(t, sampleAccounts),
	})
	if err != nil {
		t.Fatalf("Synthesize must not surface generation failure: %v", err)
	}
	if rec.Persona.Name == "" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestSynthesizeRejectsMalformedAccounts(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Synthesize(context.Background(), SynthesizeRequest{
		Identity:    store.Identity{ExternalID: "ext-1"},
		RawAccounts: rawAccounts(t, `{"code": {"displayName": "no login"}}`),
	})
	var ve *accounts.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	// Nothing was appended.
	if _, err := svc.GetCurrent(context.Background(), store.Identity{ExternalID: "ext-1"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRefreshAppendsNewVersion(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	id := store.Identity{ExternalID: "ext-1"}

	first, err := svc.Synthesize(ctx, SynthesizeRequest{
		Identity:         id,
		RawAccounts:      rawAccounts(t, sampleAccounts),
		ModelPreferences: map[string]string{"chat": "fast"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	rec, err := svc.Refresh(ctx, id)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rec.Version != first.Version+1 {
		t.Fatalf("version = %d, want %d", rec.Version, first.Version+1)
	}
	if rec.ModelPreferences["chat"] != "fast" {
		t.Fatalf("preferences not carried over: %v", rec.ModelPreferences)
	}

	if _, err := svc.Refresh(ctx, store.Identity{ExternalID: "nobody"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("refresh without bundle: err = %v, want ErrNotFound", err)
	}
}

func TestRefreshAll(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	for _, ext := range []string{"ext-1", "ext-2"} {
		if _, err := svc.Synthesize(ctx, SynthesizeRequest{
			Identity:    store.Identity{ExternalID: ext},
			RawAccounts: rawAccounts(t, sampleAccounts),
		}); err != nil {
			t.Fatalf("Synthesize %s: %v", ext, err)
		}
	}
	// An identity without a retained bundle is skipped, not an error.
	if _, err := svc.store.EnsureUser(ctx, store.Identity{ExternalID: "ext-3"}); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	count, err := svc.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("refreshed = %d, want 2", count)
	}

	for _, ext := range []string{"ext-1", "ext-2"} {
		rec, err := svc.GetCurrent(ctx, store.Identity{ExternalID: ext})
		if err != nil {
			t.Fatalf("GetCurrent %s: %v", ext, err)
		}
		if rec.Version != 2 {
			t.Fatalf("%s version = %d, want 2", ext, rec.Version)
		}
	}
}

// bundleFailStore fails bundle reads for one identity so a sweep can be
// tested against a partially broken store.
type bundleFailStore struct {
	store.Store
	failKey string
}

func (s *bundleFailStore) GetAccountBundle(ctx context.Context, identity store.Identity) (*accounts.Bundle, error) {
	if identity.Key() == s.failKey {
		return nil, errors.New("bundle blob corrupt")
	}
	return s.Store.GetAccountBundle(ctx, identity)
}

func TestExportResolvesEmailRef(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Synthesize(ctx, SynthesizeRequest{
		Identity:    store.Identity{Email: "dana@example.com"},
		RawAccounts: rawAccounts(t, sampleAccounts),
	}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	// Email refs match case-insensitively since identity keys are lowercased.
	out, err := svc.Export(ctx, "Dana@Example.com", persona.FormatLLMPrompt)
	if err != nil {
		t.Fatalf("Export by email: %v", err)
	}
	if !strings.HasPrefix(out, "You are assisting Dana Reyes") {
		t.Fatalf("prompt export = %q", out)
	}
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	backing := &bundleFailStore{Store: store.NewMemoryStore(), failKey: "ext-bad"}
	svc, err := New(Options{Store: backing})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	ctx := context.Background()

	for _, ext := range []string{"ext-1", "ext-bad", "ext-2"} {
		if _, err := svc.Synthesize(ctx, SynthesizeRequest{
			Identity:    store.Identity{ExternalID: ext},
			RawAccounts: rawAccounts(t, sampleAccounts),
		}); err != nil {
			t.Fatalf("Synthesize %s: %v", ext, err)
		}
	}

	count, err := svc.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("refreshed = %d, want 2", count)
	}

	// The healthy identities were refreshed despite the broken one.
	for _, ext := range []string{"ext-1", "ext-2"} {
		rec, err := svc.GetCurrent(ctx, store.Identity{ExternalID: ext})
		if err != nil {
			t.Fatalf("GetCurrent %s: %v", ext, err)
		}
		if rec.Version != 2 {
			t.Fatalf("%s version = %d, want 2", ext, rec.Version)
		}
	}
	rec, err := svc.GetCurrent(ctx, store.Identity{ExternalID: "ext-bad"})
	if err != nil {
		t.Fatalf("GetCurrent ext-bad: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("ext-bad version = %d, want 1", rec.Version)
	}
}

func TestExportResolvesIdentityOrID(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.Synthesize(ctx, SynthesizeRequest{
		Identity:    store.Identity{ExternalID: "ext-1"},
		RawAccounts: rawAccounts(t, sampleAccounts),
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	byKey, err := svc.Export(ctx, "ext-1", persona.FormatLLMPrompt)
	if err != nil {
		t.Fatalf("Export by identity: %v", err)
	}
	if !strings.HasPrefix(byKey, "You are assisting Dana Reyes") {
		t.Fatalf("prompt export = %q", byKey)
	}

	byID, err := svc.Export(ctx, rec.ID, persona.FormatJSON)
	if err != nil {
		t.Fatalf("Export by id: %v", err)
	}
	if !strings.Contains(byID, rec.ID) {
		t.Fatalf("json export missing id:\n%s", byID)
	}

	if _, err := svc.Export(ctx, "missing", persona.FormatJSON); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInvalidRefreshSchedule(t *testing.T) {
	_, err := New(Options{
		Store:           store.NewMemoryStore(),
		RefreshEnabled:  true,
		RefreshSchedule: "not a cron",
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
