// Package store holds the append-only persona version history. Records are
// never mutated or deleted; upsert, field patch and rollback all append a
// new version. Two implementations exist: an in-memory store for tests and
// embedding, and a SQLite store for durable deployments.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/persona"
)

var (
	// ErrNotFound reports a missing identity, persona or target version.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost version race; the caller should re-read
	// and retry the whole operation.
	ErrConflict = errors.New("version conflict")
)

// Identity is the external identifier pair for one user. At least one of
// the two fields must be set.
type Identity struct {
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
}

// Key returns the stable lookup key for the identity.
func (i Identity) Key() string {
	if id := strings.TrimSpace(i.ExternalID); id != "" {
		return id
	}
	return strings.TrimSpace(strings.ToLower(i.Email))
}

// IdentityFromRef interprets a user-supplied reference. Anything containing
// "@" is treated as an email so the key matches how email-only identities
// were registered; everything else is an external id.
func IdentityFromRef(ref string) Identity {
	if strings.Contains(ref, "@") {
		return Identity{Email: ref}
	}
	return Identity{ExternalID: ref}
}

// AppendResult describes the record appended by a write operation.
type AppendResult struct {
	ID           string    `json:"id"`
	Version      int       `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// Store is the versioned persona port. Write operations on the same
// identity are serialized internally; writes on distinct identities may
// run concurrently.
type Store interface {
	// EnsureUser creates the internal user handle on first use and
	// returns it. Idempotent.
	EnsureUser(ctx context.Context, identity Identity) (string, error)

	// Upsert appends a new version holding the given persona, numbered
	// one past the identity's current latest (1 when none exists).
	Upsert(ctx context.Context, identity Identity, p persona.Persona,
		modelPreferences map[string]string, customData map[string]interface{}) (AppendResult, error)

	// GetCurrent returns the identity's latest record.
	GetCurrent(ctx context.Context, identity Identity) (persona.Record, error)

	// GetByID returns the latest record for a persona id, resolved
	// through the id-to-identity index.
	GetByID(ctx context.Context, id string) (persona.Record, error)

	// UpdateField clones the latest snapshot, applies a dot-separated
	// path mutation and appends the result as a new version. The ref is
	// either an identity key or a persona id.
	UpdateField(ctx context.Context, ref, fieldPath string, value interface{}) (AppendResult, error)

	// GetHistory returns every version for the identity, newest first.
	GetHistory(ctx context.Context, identity Identity) ([]persona.Record, error)

	// Rollback appends a new version whose content equals the snapshot
	// at (id, toVersion). History is never altered.
	Rollback(ctx context.Context, id string, toVersion int) (AppendResult, error)

	// SaveAccountBundle retains the identity's latest normalized bundle
	// so personas can be re-synthesized without re-ingesting providers.
	SaveAccountBundle(ctx context.Context, identity Identity, bundle *accounts.Bundle) error

	// GetAccountBundle returns the identity's retained bundle.
	GetAccountBundle(ctx context.Context, identity Identity) (*accounts.Bundle, error)

	// Identities lists every known identity key.
	Identities(ctx context.Context) ([]Identity, error)

	Close() error
}
