package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotsetgreg/personagen/pkg/accounts"
)

// Strategy selects how the generation prompt weighs account signals.
type Strategy string

const (
	StrategyFocusDominant    Strategy = "focus-dominant"
	StrategyGeneralSynthesis Strategy = "general-synthesis"
)

// Context builder limits that differ from the rule generator's.
const (
	maxContextStarredTopics = 15
	maxContextChars         = 8000
)

// FocusAnswer carries the user's structured answers for one focus area.
// Notes is free text and always renders after the keyed fields.
type FocusAnswer struct {
	Area   string
	Fields map[string]string
	Notes  string
}

// BuildInput is everything the context builder may render.
type BuildInput struct {
	Bundle             *accounts.Bundle
	FocusAreas         []string
	CustomInstructions string
	Answers            []FocusAnswer
	DisplayName        string
}

// Context is the rendered prompt plus the strategy that produced it.
type Context struct {
	Prompt   string
	Strategy Strategy
}

// Build renders a bounded text block from the canonical bundle and the
// user's focus areas, answers and instructions. Focus areas switch the
// strategy to focus-dominant, which constrains goal derivation.
func Build(in BuildInput) Context {
	strategy := StrategyGeneralSynthesis
	if len(in.FocusAreas) > 0 {
		strategy = StrategyFocusDominant
	}

	var b strings.Builder
	if in.DisplayName != "" {
		fmt.Fprintf(&b, "The user's name is %s.\n\n", in.DisplayName)
	}
	renderAccounts(&b, in.Bundle)

	if strategy == StrategyFocusDominant {
		b.WriteString("Focus areas (in priority order):\n")
		for _, area := range in.FocusAreas {
			fmt.Fprintf(&b, "- %s\n", area)
		}
		b.WriteString("\nGoals must tie directly to the focus areas above. " +
			"Ignore account signals unrelated to the focus areas when deriving goals; " +
			"they may still inform interests and communication style.\n\n")
	}
	renderAnswers(&b, in.Answers)
	if in.CustomInstructions != "" {
		fmt.Fprintf(&b, "Additional instructions from the user:\n%s\n", in.CustomInstructions)
	}

	return Context{Prompt: boundText(b.String(), maxContextChars), Strategy: strategy}
}

func renderAccounts(b *strings.Builder, bundle *accounts.Bundle) {
	if bundle == nil {
		return
	}
	if v := bundle.Video; v != nil {
		b.WriteString("Video platform:\n")
		if v.DisplayName != "" {
			fmt.Fprintf(b, "  display name: %s\n", v.DisplayName)
		}
		if v.Locale != "" {
			fmt.Fprintf(b, "  locale: %s\n", v.Locale)
		}
		writeTitles(b, "subscriptions", truncateItems(v.Subscriptions, maxSubscriptions))
		writeTitles(b, "playlists", truncateItems(v.Playlists, maxPlaylists))
		writeTitles(b, "liked videos", truncateItems(v.Likes, maxPlaylists))
		b.WriteString("\n")
	}
	if c := bundle.Code; c != nil {
		b.WriteString("Code hosting:\n")
		fmt.Fprintf(b, "  login: %s\n", c.Login)
		if c.DisplayName != "" {
			fmt.Fprintf(b, "  display name: %s\n", c.DisplayName)
		}
		if c.Bio != "" {
			fmt.Fprintf(b, "  bio: %s\n", c.Bio)
		}
		if c.Company != "" {
			fmt.Fprintf(b, "  company: %s\n", c.Company)
		}
		if c.Location != "" {
			fmt.Fprintf(b, "  location: %s\n", c.Location)
		}
		if len(c.Repos) > 0 {
			b.WriteString("  repositories (by stars):\n")
			for _, r := range topReposByStars(c.Repos, maxRepos) {
				if r.Language != "" {
					fmt.Fprintf(b, "  - %s (%s, %d stars)\n", r.Name, r.Language, r.Stars)
				} else {
					fmt.Fprintf(b, "  - %s (%d stars)\n", r.Name, r.Stars)
				}
			}
		}
		if topics := topStarredTopics(c.Starred, maxContextStarredTopics); len(topics) > 0 {
			fmt.Fprintf(b, "  starred topics: %s\n", strings.Join(topics, ", "))
		}
		b.WriteString("\n")
	}
	if p := bundle.Professional; p != nil {
		b.WriteString("Professional network:\n")
		fmt.Fprintf(b, "  name: %s\n", p.Name)
		if p.Headline != "" {
			fmt.Fprintf(b, "  headline: %s\n", p.Headline)
		}
		if p.Industry != "" {
			fmt.Fprintf(b, "  industry: %s\n", p.Industry)
		}
		if len(p.Skills) > 0 {
			fmt.Fprintf(b, "  skills: %s\n", strings.Join(p.Skills, ", "))
		}
		b.WriteString("\n")
	}
	if s := bundle.Social; s != nil {
		b.WriteString("Social network:\n")
		fmt.Fprintf(b, "  username: %s\n", s.Username)
		if s.Name != "" {
			fmt.Fprintf(b, "  name: %s\n", s.Name)
		}
		if s.Bio != "" {
			fmt.Fprintf(b, "  bio: %s\n", s.Bio)
		}
		if cats := followCategories(s.Follows, maxFollowCategories); len(cats) > 0 {
			fmt.Fprintf(b, "  follow categories: %s\n", strings.Join(cats, ", "))
		}
		b.WriteString("\n")
	}
}

func renderAnswers(b *strings.Builder, answers []FocusAnswer) {
	for _, a := range answers {
		if a.Area == "" {
			continue
		}
		fmt.Fprintf(b, "Answers for %s:\n", a.Area)
		keys := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			if a.Fields[k] != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "  %s: %s\n", k, a.Fields[k])
		}
		if a.Notes != "" {
			fmt.Fprintf(b, "  additional context: %s\n", a.Notes)
		}
		b.WriteString("\n")
	}
}

func writeTitles(b *strings.Builder, label string, items []accounts.VideoItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it.Title)
	}
}

func topReposByStars(repos []accounts.Repo, limit int) []accounts.Repo {
	out := append([]accounts.Repo{}, repos...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stars > out[j].Stars })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// boundText trims the rendered block to the budget on a line boundary so a
// huge bundle cannot blow up the prompt.
func boundText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndexByte(s[:limit], '\n')
	if cut <= 0 {
		cut = limit
	}
	return s[:cut] + "\n"
}
