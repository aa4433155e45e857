package accounts

import (
	"encoding/json"
	"fmt"
)

// Bundle is the canonical, validated shape of a user's connected-account data.
// Every provider sub-record is optional; absent collections are empty slices,
// never nil maps of surprises. Unknown provider keys and unknown fields inside
// a known provider are preserved opaquely in Extra bags so that payloads from
// newer collectors round-trip without loss.
type Bundle struct {
	Video        *VideoAccount        `json:"video,omitempty"`
	Code         *CodeAccount         `json:"code,omitempty"`
	Professional *ProfessionalAccount `json:"professional,omitempty"`
	Social       *SocialAccount       `json:"social,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// VideoAccount holds video-platform signals: subscriptions, playlists, likes.
type VideoAccount struct {
	DisplayName   string      `json:"displayName,omitempty"`
	Locale        string      `json:"locale,omitempty"`
	Subscriptions []VideoItem `json:"subscriptions"`
	Playlists     []VideoItem `json:"playlists"`
	Likes         []VideoItem `json:"likes"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// VideoItem is a single subscription, playlist or liked entry.
type VideoItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CodeAccount holds code-hosting signals: profile, repositories, starred items.
type CodeAccount struct {
	Login       string        `json:"login"`
	DisplayName string        `json:"displayName,omitempty"`
	Bio         string        `json:"bio,omitempty"`
	Company     string        `json:"company,omitempty"`
	Location    string        `json:"location,omitempty"`
	Repos       []Repo        `json:"repos"`
	Starred     []StarredItem `json:"starred"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Repo is one owned repository.
type Repo struct {
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Stars    int    `json:"stars"`
}

// StarredItem is one starred repository with its topic labels.
type StarredItem struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

// ProfessionalAccount holds professional-network profile signals.
type ProfessionalAccount struct {
	Name     string   `json:"name"`
	Headline string   `json:"headline,omitempty"`
	Industry string   `json:"industry,omitempty"`
	Skills   []string `json:"skills"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// SocialAccount holds social-follow-graph signals.
type SocialAccount struct {
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Bio      string   `json:"bio,omitempty"`
	Follows  []Follow `json:"follows"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Follow is one followed account, optionally tagged with a category.
type Follow struct {
	Username string `json:"username"`
	Category string `json:"category,omitempty"`
}

// Clone returns a deep copy through a JSON round trip, covering the opaque
// Extra bags. A bundle that survived Normalize always marshals.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return b
	}
	out := &Bundle{}
	if err := json.Unmarshal(data, out); err != nil {
		return b
	}
	return out
}

// ValidationError reports a malformed raw account bundle. It is returned by
// Normalize before any generation work starts.
type ValidationError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("invalid account bundle: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s account: %s: %s", e.Provider, e.Field, e.Reason)
}
