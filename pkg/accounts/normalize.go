package accounts

import (
	"strings"
)

// Normalize validates and shapes a raw, provider-keyed payload into a Bundle.
// It is pure: no I/O, no mutation of the input. A sub-record that is present
// but missing its required identity field yields a *ValidationError; absent
// collections default to empty slices; optional scalars stay empty rather than
// being null-coerced. Unknown sibling fields are carried through opaquely.
func Normalize(raw map[string]interface{}) (*Bundle, error) {
	out := &Bundle{}

	for key, value := range raw {
		switch key {
		case "video":
			sub, err := asObject("video", value)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				continue
			}
			acct, err := normalizeVideo(sub)
			if err != nil {
				return nil, err
			}
			out.Video = acct
		case "code":
			sub, err := asObject("code", value)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				continue
			}
			acct, err := normalizeCode(sub)
			if err != nil {
				return nil, err
			}
			out.Code = acct
		case "professional":
			sub, err := asObject("professional", value)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				continue
			}
			acct, err := normalizeProfessional(sub)
			if err != nil {
				return nil, err
			}
			out.Professional = acct
		case "social":
			sub, err := asObject("social", value)
			if err != nil {
				return nil, err
			}
			if sub == nil {
				continue
			}
			acct, err := normalizeSocial(sub)
			if err != nil {
				return nil, err
			}
			out.Social = acct
		default:
			if out.Extra == nil {
				out.Extra = map[string]interface{}{}
			}
			out.Extra[key] = value
		}
	}

	return out, nil
}

func normalizeVideo(sub map[string]interface{}) (*VideoAccount, error) {
	acct := &VideoAccount{
		Subscriptions: []VideoItem{},
		Playlists:     []VideoItem{},
		Likes:         []VideoItem{},
	}
	for key, value := range sub {
		switch key {
		case "displayName":
			acct.DisplayName = stringField(value)
		case "locale":
			acct.Locale = stringField(value)
		case "subscriptions", "playlists", "likes":
			items, err := videoItems("video", key, value)
			if err != nil {
				return nil, err
			}
			switch key {
			case "subscriptions":
				acct.Subscriptions = items
			case "playlists":
				acct.Playlists = items
			case "likes":
				acct.Likes = items
			}
		default:
			acct.Extra = putExtra(acct.Extra, key, value)
		}
	}
	return acct, nil
}

func normalizeCode(sub map[string]interface{}) (*CodeAccount, error) {
	acct := &CodeAccount{
		Repos:   []Repo{},
		Starred: []StarredItem{},
	}
	for key, value := range sub {
		switch key {
		case "login":
			acct.Login = stringField(value)
		case "displayName":
			acct.DisplayName = stringField(value)
		case "bio":
			acct.Bio = stringField(value)
		case "company":
			acct.Company = stringField(value)
		case "location":
			acct.Location = stringField(value)
		case "repos":
			list, err := asList("code", "repos", value)
			if err != nil {
				return nil, err
			}
			for _, item := range list {
				name := stringField(item["name"])
				if name == "" {
					return nil, &ValidationError{Provider: "code", Field: "repos.name", Reason: "required"}
				}
				acct.Repos = append(acct.Repos, Repo{
					Name:     name,
					Language: stringField(item["language"]),
					Stars:    intField(item["stars"]),
				})
			}
		case "starred":
			list, err := asList("code", "starred", value)
			if err != nil {
				return nil, err
			}
			for _, item := range list {
				name := stringField(item["name"])
				if name == "" {
					return nil, &ValidationError{Provider: "code", Field: "starred.name", Reason: "required"}
				}
				acct.Starred = append(acct.Starred, StarredItem{
					Name:   name,
					Topics: stringSlice(item["topics"]),
				})
			}
		default:
			acct.Extra = putExtra(acct.Extra, key, value)
		}
	}
	if acct.Login == "" {
		return nil, &ValidationError{Provider: "code", Field: "login", Reason: "required"}
	}
	return acct, nil
}

func normalizeProfessional(sub map[string]interface{}) (*ProfessionalAccount, error) {
	acct := &ProfessionalAccount{Skills: []string{}}
	for key, value := range sub {
		switch key {
		case "name":
			acct.Name = stringField(value)
		case "headline":
			acct.Headline = stringField(value)
		case "industry":
			acct.Industry = stringField(value)
		case "skills":
			acct.Skills = stringSlice(value)
		default:
			acct.Extra = putExtra(acct.Extra, key, value)
		}
	}
	if acct.Name == "" {
		return nil, &ValidationError{Provider: "professional", Field: "name", Reason: "required"}
	}
	return acct, nil
}

func normalizeSocial(sub map[string]interface{}) (*SocialAccount, error) {
	acct := &SocialAccount{Follows: []Follow{}}
	for key, value := range sub {
		switch key {
		case "username":
			acct.Username = stringField(value)
		case "name":
			acct.Name = stringField(value)
		case "bio":
			acct.Bio = stringField(value)
		case "follows":
			list, err := asList("social", "follows", value)
			if err != nil {
				return nil, err
			}
			for _, item := range list {
				username := stringField(item["username"])
				if username == "" {
					return nil, &ValidationError{Provider: "social", Field: "follows.username", Reason: "required"}
				}
				acct.Follows = append(acct.Follows, Follow{
					Username: username,
					Category: stringField(item["category"]),
				})
			}
		default:
			acct.Extra = putExtra(acct.Extra, key, value)
		}
	}
	if acct.Username == "" {
		return nil, &ValidationError{Provider: "social", Field: "username", Reason: "required"}
	}
	return acct, nil
}

func videoItems(provider, field string, value interface{}) ([]VideoItem, error) {
	list, err := asList(provider, field, value)
	if err != nil {
		return nil, err
	}
	out := make([]VideoItem, 0, len(list))
	for _, item := range list {
		title := stringField(item["title"])
		if title == "" {
			return nil, &ValidationError{Provider: provider, Field: field + ".title", Reason: "required"}
		}
		out = append(out, VideoItem{
			Title:       title,
			Description: stringField(item["description"]),
		})
	}
	return out, nil
}

func asObject(provider string, value interface{}) (map[string]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Provider: provider, Field: "(root)", Reason: "expected an object"}
	}
	return obj, nil
}

func asList(provider, field string, value interface{}) ([]map[string]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, &ValidationError{Provider: provider, Field: field, Reason: "expected a list"}
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ValidationError{Provider: provider, Field: field, Reason: "expected a list of objects"}
		}
		out = append(out, obj)
	}
	return out, nil
}

func stringField(value interface{}) string {
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

func intField(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringSlice(value interface{}) []string {
	out := []string{}
	list, ok := value.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		if s := stringField(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func putExtra(extra map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if extra == nil {
		extra = map[string]interface{}{}
	}
	extra[key] = value
	return extra
}
