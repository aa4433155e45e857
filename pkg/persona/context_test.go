package persona

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dotsetgreg/personagen/pkg/accounts"
)

func TestBuildStrategySelection(t *testing.T) {
	ctx := Build(BuildInput{Bundle: &accounts.Bundle{}})
	if ctx.Strategy != StrategyGeneralSynthesis {
		t.Fatalf("strategy = %q, want general-synthesis", ctx.Strategy)
	}

	ctx = Build(BuildInput{Bundle: &accounts.Bundle{}, FocusAreas: []string{"devops"}})
	if ctx.Strategy != StrategyFocusDominant {
		t.Fatalf("strategy = %q, want focus-dominant", ctx.Strategy)
	}
	if !strings.Contains(ctx.Prompt, "Goals must tie directly to the focus areas") {
		t.Fatalf("focus-dominant prompt missing goal constraint:\n%s", ctx.Prompt)
	}
	if !strings.Contains(ctx.Prompt, "- devops") {
		t.Fatalf("prompt missing focus area listing:\n%s", ctx.Prompt)
	}
}

func TestBuildTruncatesLists(t *testing.T) {
	subs := make([]accounts.VideoItem, 30)
	for i := range subs {
		subs[i] = accounts.VideoItem{Title: fmt.Sprintf("Channel %02d", i)}
	}
	repos := make([]accounts.Repo, 15)
	for i := range repos {
		repos[i] = accounts.Repo{Name: fmt.Sprintf("repo-%02d", i), Stars: i}
	}
	ctx := Build(BuildInput{Bundle: &accounts.Bundle{
		Video: &accounts.VideoAccount{Subscriptions: subs},
		Code:  &accounts.CodeAccount{Login: "sam", Repos: repos},
	}})

	if !strings.Contains(ctx.Prompt, "Channel 19") {
		t.Fatalf("prompt missing 20th subscription:\n%s", ctx.Prompt)
	}
	if strings.Contains(ctx.Prompt, "Channel 20") {
		t.Fatalf("prompt kept subscription past limit:\n%s", ctx.Prompt)
	}
	// Repos render by descending stars, so the lowest-star repos drop out.
	if !strings.Contains(ctx.Prompt, "repo-14") || strings.Contains(ctx.Prompt, "repo-04") {
		t.Fatalf("repo truncation wrong:\n%s", ctx.Prompt)
	}
}

func TestBuildRendersAnswers(t *testing.T) {
	ctx := Build(BuildInput{
		Bundle:     &accounts.Bundle{},
		FocusAreas: []string{"career growth"},
		Answers: []FocusAnswer{{
			Area:   "career growth",
			Fields: map[string]string{"timeline": "6 months", "role": "staff engineer"},
			Notes:  "open to relocating",
		}},
	})
	body := ctx.Prompt
	if !strings.Contains(body, "Answers for career growth:") {
		t.Fatalf("missing answers block:\n%s", body)
	}
	roleIdx := strings.Index(body, "role: staff engineer")
	notesIdx := strings.Index(body, "additional context: open to relocating")
	if roleIdx == -1 || notesIdx == -1 {
		t.Fatalf("missing answer fields:\n%s", body)
	}
	if notesIdx < roleIdx {
		t.Fatalf("notes rendered before keyed fields:\n%s", body)
	}
}

func TestBuildBoundsOutput(t *testing.T) {
	subs := make([]accounts.VideoItem, 20)
	for i := range subs {
		subs[i] = accounts.VideoItem{Title: strings.Repeat("x", 900)}
	}
	ctx := Build(BuildInput{
		Bundle:             &accounts.Bundle{Video: &accounts.VideoAccount{Subscriptions: subs}},
		CustomInstructions: strings.Repeat("y", 2000),
	})
	if len(ctx.Prompt) > maxContextChars+1 {
		t.Fatalf("prompt length %d exceeds bound", len(ctx.Prompt))
	}
}
