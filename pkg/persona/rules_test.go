package persona

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/dotsetgreg/personagen/pkg/accounts"
)

func TestDeriveRepoLanguageOrdering(t *testing.T) {
	bundle := &accounts.Bundle{
		Code: &accounts.CodeAccount{
			Login: "sam",
			Repos: []accounts.Repo{
				{Name: "webapp", Language: "TypeScript", Stars: 5},
				{Name: "cli", Language: "TypeScript", Stars: 2},
				{Name: "mlkit", Language: "Python", Stars: 9},
			},
		},
	}
	p := Derive(bundle, nil)

	tsIdx, pyIdx := -1, -1
	for i, interest := range p.Interests {
		switch interest {
		case "TypeScript":
			tsIdx = i
		case "Python":
			pyIdx = i
		}
	}
	if tsIdx == -1 || pyIdx == -1 {
		t.Fatalf("expected both languages in interests, got %v", p.Interests)
	}
	if tsIdx > pyIdx {
		t.Fatalf("expected TypeScript before Python, got %v", p.Interests)
	}
	if p.Style.TechnicalLevel != TechnicalIntermediate {
		t.Fatalf("expected intermediate with 3 repos, got %q", p.Style.TechnicalLevel)
	}
}

func TestDeriveAdvancedThreshold(t *testing.T) {
	repos := make([]accounts.Repo, 21)
	for i := range repos {
		repos[i] = accounts.Repo{Name: fmt.Sprintf("repo-%d", i), Language: "Go"}
	}
	p := Derive(&accounts.Bundle{Code: &accounts.CodeAccount{Login: "sam", Repos: repos}}, nil)
	if p.Style.TechnicalLevel != TechnicalAdvanced {
		t.Fatalf("expected advanced with %d repos, got %q", len(repos), p.Style.TechnicalLevel)
	}
}

func TestDeriveNamePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		bundle *accounts.Bundle
		want   string
	}{
		{
			name: "professional wins",
			bundle: &accounts.Bundle{
				Professional: &accounts.ProfessionalAccount{Name: "Dana Reyes"},
				Video:        &accounts.VideoAccount{DisplayName: "dana_vids"},
			},
			want: "Dana Reyes",
		},
		{
			name: "video over code",
			bundle: &accounts.Bundle{
				Video: &accounts.VideoAccount{DisplayName: "dana_vids"},
				Code:  &accounts.CodeAccount{Login: "dr", DisplayName: "Dana R"},
			},
			want: "dana_vids",
		},
		{
			name: "social last",
			bundle: &accounts.Bundle{
				Social: &accounts.SocialAccount{Username: "dr", Name: "Dana"},
			},
			want: "Dana",
		},
		{name: "empty bundle", bundle: &accounts.Bundle{}, want: "User"},
		{name: "nil bundle", bundle: nil, want: "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.bundle, nil).Name; got != tt.want {
				t.Fatalf("name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveProfession(t *testing.T) {
	tests := []struct {
		name   string
		bundle *accounts.Bundle
		want   string
	}{
		{
			name: "headline wins",
			bundle: &accounts.Bundle{
				Professional: &accounts.ProfessionalAccount{Name: "Dana", Headline: "Staff Engineer at Acme"},
				Code:         &accounts.CodeAccount{Login: "d", Bio: "designer by trade"},
			},
			want: "Staff Engineer at Acme",
		},
		{
			name:   "keyword order over position",
			bundle: &accounts.Bundle{Code: &accounts.CodeAccount{Login: "d", Bio: "designer and engineer"}},
			want:   "Engineer",
		},
		{
			name:   "cto uppercased",
			bundle: &accounts.Bundle{Code: &accounts.CodeAccount{Login: "d", Bio: "acting CTO of a startup"}},
			want:   "CTO",
		},
		{
			name:   "no signal",
			bundle: &accounts.Bundle{Code: &accounts.CodeAccount{Login: "d", Bio: "likes gardening"}},
			want:   "Professional",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.bundle, nil).Profession; got != tt.want {
				t.Fatalf("profession = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveLocale(t *testing.T) {
	p := Derive(&accounts.Bundle{Video: &accounts.VideoAccount{Locale: "pt-BR"}}, nil)
	if !reflect.DeepEqual(p.Languages, []string{"pt"}) || p.PreferredLanguage != "pt" {
		t.Fatalf("languages = %v preferred = %q", p.Languages, p.PreferredLanguage)
	}

	p = Derive(&accounts.Bundle{}, nil)
	if !reflect.DeepEqual(p.Languages, []string{"en"}) || p.PreferredLanguage != "en" {
		t.Fatalf("default languages = %v preferred = %q", p.Languages, p.PreferredLanguage)
	}
}

func TestDeriveGoals(t *testing.T) {
	bundle := &accounts.Bundle{
		Code: &accounts.CodeAccount{
			Login: "sam",
			Repos: []accounts.Repo{
				{Name: "alpha", Language: "Go", Stars: 3},
				{Name: "beta", Language: "Rust", Stars: 40},
				{Name: "gamma", Language: "Python", Stars: 1},
				{Name: "delta", Language: "TypeScript", Stars: 7},
			},
		},
		Professional: &accounts.ProfessionalAccount{
			Name:   "Sam",
			Skills: []string{"Kubernetes", "Team Leadership"},
		},
	}
	p := Derive(bundle, nil)
	want := []string{
		"Maintain and improve beta",
		"Master full-stack development",
		"Grow as a technical leader",
	}
	if !reflect.DeepEqual(p.CurrentGoals, want) {
		t.Fatalf("goals = %v, want %v", p.CurrentGoals, want)
	}
}

func TestDeriveGoalsDefaultTriple(t *testing.T) {
	p := Derive(&accounts.Bundle{}, nil)
	want := []string{
		"Build and ship products faster",
		"Learn new technologies",
		"Connect with like-minded professionals",
	}
	if !reflect.DeepEqual(p.CurrentGoals, want) {
		t.Fatalf("goals = %v, want %v", p.CurrentGoals, want)
	}
}

func TestDeriveGoalsFromFocusAreas(t *testing.T) {
	areas := []string{"machine learning", "public speaking", "machine learning"}
	p := Derive(&accounts.Bundle{
		Code: &accounts.CodeAccount{Login: "s", Repos: []accounts.Repo{{Name: "x", Stars: 1}}},
	}, areas)
	want := []string{
		"Make progress on machine learning",
		"Make progress on public speaking",
	}
	if !reflect.DeepEqual(p.CurrentGoals, want) {
		t.Fatalf("goals = %v, want %v", p.CurrentGoals, want)
	}
}

func TestDeriveInterestsNoDuplicates(t *testing.T) {
	bundle := &accounts.Bundle{
		Video: &accounts.VideoAccount{
			Subscriptions: []accounts.VideoItem{{Title: "Rust"}, {Title: "Cooking"}},
			Playlists:     []accounts.VideoItem{{Title: "Rust"}},
		},
		Code: &accounts.CodeAccount{
			Login:   "sam",
			Repos:   []accounts.Repo{{Name: "r", Language: "Rust"}},
			Starred: []accounts.StarredItem{{Name: "s", Topics: []string{"rustlang", "Cooking"}}},
		},
		Professional: &accounts.ProfessionalAccount{Name: "Sam", Skills: []string{"Rust", "Distributed Systems"}},
	}
	p := Derive(bundle, nil)
	seen := map[string]bool{}
	for _, interest := range p.Interests {
		if seen[interest] {
			t.Fatalf("duplicate interest %q in %v", interest, p.Interests)
		}
		seen[interest] = true
	}
	if p.Interests[0] != "Rust" {
		t.Fatalf("expected subscription title first, got %v", p.Interests)
	}
	if seen["Distributed Systems"] {
		t.Fatalf("professional skills are not an interest source, got %v", p.Interests)
	}
}

func TestDeriveInterestsIgnoreSkills(t *testing.T) {
	bundle := &accounts.Bundle{
		Professional: &accounts.ProfessionalAccount{
			Name:   "Sam",
			Skills: []string{"Underwater Basket Weaving"},
		},
	}
	p := Derive(bundle, nil)
	if len(p.Interests) != 0 {
		t.Fatalf("expected no interests from a skills-only bundle, got %v", p.Interests)
	}
}

func TestDeriveAlwaysValid(t *testing.T) {
	bundles := []*accounts.Bundle{
		nil,
		{},
		{Video: &accounts.VideoAccount{Locale: "de-DE"}},
		{Social: &accounts.SocialAccount{Username: "x"}},
	}
	for i, bundle := range bundles {
		p := Derive(bundle, nil)
		if err := Validate(&p); err != nil {
			t.Fatalf("bundle %d: derived persona failed validation: %v", i, err)
		}
	}
}
