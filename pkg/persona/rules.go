package persona

import (
	"sort"
	"strings"

	"github.com/dotsetgreg/personagen/pkg/accounts"
)

// Truncation limits shared by the rule generator and the context renderer.
const (
	maxSubscriptions    = 20
	maxPlaylists        = 10
	maxRepos            = 10
	maxRepoLanguages    = 5
	maxStarredTopics    = 10
	maxFollowCategories = 5

	advancedRepoThreshold = 20
)

var professionKeywords = []string{
	"engineer", "developer", "designer", "manager", "researcher",
	"scientist", "analyst", "consultant", "founder", "ceo", "cto", "student",
}

// Derive builds a persona from connected-account signals alone. It is pure,
// touches no network, and always returns a schema-valid result. When focus
// areas are supplied the goals are tied to them instead of account signals.
func Derive(bundle *accounts.Bundle, focusAreas []string) Persona {
	p := Persona{
		Name:              deriveName(bundle),
		Languages:         []string{DefaultLanguage},
		PreferredLanguage: DefaultLanguage,
		Style:             DefaultStyle(),
		Interests:         deriveInterests(bundle),
		Profession:        deriveProfession(bundle),
		CurrentGoals:      deriveGoals(bundle, focusAreas),
	}
	if bundle != nil && bundle.Video != nil && bundle.Video.Locale != "" {
		lang := strings.SplitN(bundle.Video.Locale, "-", 2)[0]
		if lang != "" {
			p.Languages = []string{lang}
			p.PreferredLanguage = lang
		}
	}
	if bundle != nil && bundle.Code != nil && len(bundle.Code.Repos) > advancedRepoThreshold {
		p.Style.TechnicalLevel = TechnicalAdvanced
	}
	return p
}

func deriveName(bundle *accounts.Bundle) string {
	if bundle != nil {
		candidates := []string{}
		if bundle.Professional != nil {
			candidates = append(candidates, bundle.Professional.Name)
		}
		if bundle.Video != nil {
			candidates = append(candidates, bundle.Video.DisplayName)
		}
		if bundle.Code != nil {
			candidates = append(candidates, bundle.Code.DisplayName)
		}
		if bundle.Social != nil {
			candidates = append(candidates, bundle.Social.Name)
		}
		for _, c := range candidates {
			if c != "" {
				return c
			}
		}
	}
	return "User"
}

func deriveProfession(bundle *accounts.Bundle) string {
	if bundle == nil {
		return "Professional"
	}
	if bundle.Professional != nil && bundle.Professional.Headline != "" {
		return bundle.Professional.Headline
	}
	if bundle.Code != nil && bundle.Code.Bio != "" {
		bio := strings.ToLower(bundle.Code.Bio)
		for _, kw := range professionKeywords {
			if strings.Contains(bio, kw) {
				return capitalizeKeyword(kw)
			}
		}
	}
	return "Professional"
}

func capitalizeKeyword(kw string) string {
	switch kw {
	case "ceo", "cto":
		return strings.ToUpper(kw)
	}
	return strings.ToUpper(kw[:1]) + kw[1:]
}

func deriveInterests(bundle *accounts.Bundle) []string {
	if bundle == nil {
		return []string{}
	}
	var raw []string
	if bundle.Video != nil {
		for _, it := range truncateItems(bundle.Video.Subscriptions, maxSubscriptions) {
			raw = append(raw, it.Title)
		}
		for _, it := range truncateItems(bundle.Video.Playlists, maxPlaylists) {
			raw = append(raw, it.Title)
		}
	}
	if bundle.Code != nil {
		raw = append(raw, topRepoLanguages(bundle.Code.Repos, maxRepoLanguages)...)
		raw = append(raw, topStarredTopics(bundle.Code.Starred, maxStarredTopics)...)
	}
	if bundle.Social != nil {
		raw = append(raw, followCategories(bundle.Social.Follows, maxFollowCategories)...)
	}
	out := dedupePreserveOrder(raw)
	if out == nil {
		out = []string{}
	}
	return out
}

func deriveGoals(bundle *accounts.Bundle, focusAreas []string) []string {
	if len(focusAreas) > 0 {
		goals := make([]string, 0, MaxCurrentGoals)
		for _, area := range dedupePreserveOrder(focusAreas) {
			goals = append(goals, "Make progress on "+area)
			if len(goals) == MaxCurrentGoals {
				break
			}
		}
		return goals
	}

	var goals []string
	if bundle != nil && bundle.Code != nil && len(bundle.Code.Repos) > 0 {
		goals = append(goals, "Maintain and improve "+highestStarRepo(bundle.Code.Repos))
		if distinctRepoLanguages(bundle.Code.Repos) > 3 {
			goals = append(goals, "Master full-stack development")
		}
	}
	if bundle != nil && bundle.Professional != nil {
		for _, skill := range bundle.Professional.Skills {
			if strings.Contains(strings.ToLower(skill), "lead") {
				goals = append(goals, "Grow as a technical leader")
				break
			}
		}
	}
	if len(goals) == 0 {
		goals = []string{
			"Build and ship products faster",
			"Learn new technologies",
			"Connect with like-minded professionals",
		}
	}
	if len(goals) > MaxCurrentGoals {
		goals = goals[:MaxCurrentGoals]
	}
	return goals
}

func truncateItems(items []accounts.VideoItem, limit int) []accounts.VideoItem {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func highestStarRepo(repos []accounts.Repo) string {
	best := repos[0]
	for _, r := range repos[1:] {
		if r.Stars > best.Stars {
			best = r
		}
	}
	return best.Name
}

func distinctRepoLanguages(repos []accounts.Repo) int {
	seen := map[string]struct{}{}
	for _, r := range repos {
		if r.Language != "" {
			seen[r.Language] = struct{}{}
		}
	}
	return len(seen)
}

// topRepoLanguages ranks languages by how many repos use them, ties broken
// by first appearance in the repo list.
func topRepoLanguages(repos []accounts.Repo, limit int) []string {
	return rankByFrequency(func(yield func(string)) {
		for _, r := range repos {
			if r.Language != "" {
				yield(r.Language)
			}
		}
	}, limit)
}

func topStarredTopics(starred []accounts.StarredItem, limit int) []string {
	return rankByFrequency(func(yield func(string)) {
		for _, s := range starred {
			for _, t := range s.Topics {
				if t != "" {
					yield(t)
				}
			}
		}
	}, limit)
}

func rankByFrequency(walk func(yield func(string)), limit int) []string {
	counts := map[string]int{}
	order := map[string]int{}
	var keys []string
	walk(func(v string) {
		if _, ok := counts[v]; !ok {
			order[v] = len(keys)
			keys = append(keys, v)
		}
		counts[v]++
	})
	sort.SliceStable(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func followCategories(follows []accounts.Follow, limit int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range follows {
		if f.Category == "" {
			continue
		}
		if _, ok := seen[f.Category]; ok {
			continue
		}
		seen[f.Category] = struct{}{}
		out = append(out, f.Category)
		if len(out) == limit {
			break
		}
	}
	return out
}
