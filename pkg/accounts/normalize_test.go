package accounts

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeRaw(t *testing.T, payload string) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return out
}

func TestNormalizeFullBundle(t *testing.T) {
	raw := decodeRaw(t, `{
		"video": {
			"displayName": "Sam Codes",
			"locale": "en-GB",
			"subscriptions": [{"title": "Go Time", "description": "Go podcast"}],
			"playlists": [{"title": "Conference talks"}]
		},
		"code": {
			"login": "samdev",
			"displayName": "Sam Developer",
			"bio": "Backend engineer who ships",
			"repos": [{"name": "queued", "language": "Go", "stars": 41}],
			"starred": [{"name": "sqlite", "topics": ["database", "embedded"]}]
		},
		"professional": {
			"name": "Sam Rivera",
			"headline": "Staff Engineer",
			"skills": ["Go", "Team Lead"]
		},
		"social": {
			"username": "samr",
			"follows": [{"username": "gopher", "category": "tech"}]
		}
	}`)

	bundle, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if bundle.Video == nil || bundle.Code == nil || bundle.Professional == nil || bundle.Social == nil {
		t.Fatalf("expected all four provider sub-records, got %+v", bundle)
	}
	if bundle.Video.Locale != "en-GB" {
		t.Fatalf("expected locale en-GB, got %q", bundle.Video.Locale)
	}
	if len(bundle.Video.Likes) != 0 || bundle.Video.Likes == nil {
		t.Fatalf("expected absent likes collection to default to empty list")
	}
	if bundle.Code.Repos[0].Stars != 41 {
		t.Fatalf("expected stars 41, got %d", bundle.Code.Repos[0].Stars)
	}
	if bundle.Professional.Skills[1] != "Team Lead" {
		t.Fatalf("unexpected skills: %v", bundle.Professional.Skills)
	}
	if bundle.Social.Follows[0].Category != "tech" {
		t.Fatalf("unexpected follows: %v", bundle.Social.Follows)
	}
}

func TestNormalizeMissingIdentityFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{name: "code login", payload: `{"code": {"bio": "dev"}}`, field: "login"},
		{name: "professional name", payload: `{"professional": {"headline": "PM"}}`, field: "name"},
		{name: "social username", payload: `{"social": {"name": "Sam"}}`, field: "username"},
		{name: "repo name", payload: `{"code": {"login": "x", "repos": [{"language": "Go"}]}}`, field: "repos.name"},
		{name: "subscription title", payload: `{"video": {"subscriptions": [{"description": "no title"}]}}`, field: "subscriptions.title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(decodeRaw(t, tt.payload))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestNormalizeMalformedShapes(t *testing.T) {
	tests := []string{
		`{"code": "not an object"}`,
		`{"video": {"subscriptions": "not a list"}}`,
		`{"social": {"username": "x", "follows": [42]}}`,
	}
	for _, payload := range tests {
		if _, err := Normalize(decodeRaw(t, payload)); err == nil {
			t.Fatalf("expected validation error for %s", payload)
		}
	}
}

func TestNormalizePreservesUnknownFields(t *testing.T) {
	raw := decodeRaw(t, `{
		"code": {"login": "samdev", "avatarUrl": "https://example.com/a.png"},
		"music": {"topArtists": ["Ok Go"]}
	}`)
	bundle, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if bundle.Code.Extra["avatarUrl"] != "https://example.com/a.png" {
		t.Fatalf("expected unknown provider field to be preserved, got %v", bundle.Code.Extra)
	}
	if _, ok := bundle.Extra["music"]; !ok {
		t.Fatalf("expected unknown provider sub-record to be preserved, got %v", bundle.Extra)
	}
}

func TestNormalizeEmptyBundle(t *testing.T) {
	bundle, err := Normalize(map[string]interface{}{})
	if err != nil {
		t.Fatalf("normalize empty: %v", err)
	}
	if bundle.Video != nil || bundle.Code != nil || bundle.Professional != nil || bundle.Social != nil {
		t.Fatalf("expected no sub-records, got %+v", bundle)
	}
}
