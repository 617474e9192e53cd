// Package sourcesconfig loads the per-parser source lists (feeds, Telegram
// chats/channels, Mastodon accounts to follow) from a JSON document into
// parser.SourceParams, keyed by name exactly like the original's
// {x["name"]: x for x in config.get("feed_parser.sites", [])} dict
// comprehension, generalized from one dotted config path per parser to one
// JSON file per parser (§6).
package sourcesconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"feedbot/internal/domain/parser"
)

// entry is the on-disk shape of one configured source. Fields unused by a
// given parser are simply left at their zero value in the JSON document.
type entry struct {
	Name                  string `json:"name"`
	URL                   string `json:"url"`
	ID                    string `json:"id"`
	Language              string `json:"language_default"`
	LanguageOverride      bool   `json:"language_override"`
	MaxSummaryLength      int    `json:"max_summary_length"`
	ShowName              bool   `json:"show_name"`
	KeywordsFilterProfile string `json:"keywords_filter_profile"`
	AutoFollow            bool   `json:"auto_follow"`
	Toots                 bool   `json:"toots"`
	Retoots               bool   `json:"retoots"`
}

// Load reads path and returns its entries indexed by name. A missing file
// yields an empty map rather than an error, matching Storage's convention
// that an absent config document means "nothing configured yet" instead of
// a fatal startup error.
func Load(path string) (map[string]parser.SourceParams, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]parser.SourceParams{}, nil
	}
	if err != nil {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("read sources file %s: %w", path, err)}
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("parse sources file %s: %w", path, err)}
	}

	out := make(map[string]parser.SourceParams, len(entries))
	for _, e := range entries {
		out[e.Name] = parser.SourceParams{
			Name:                  e.Name,
			URL:                   e.URL,
			ID:                    e.ID,
			LanguageDefault:       e.Language,
			LanguageOverride:      e.LanguageOverride,
			MaxSummaryLength:      e.MaxSummaryLength,
			ShowName:              e.ShowName,
			KeywordsFilterProfile: e.KeywordsFilterProfile,
			AutoFollow:            e.AutoFollow,
			Toots:                 e.Toots,
			Retoots:               e.Retoots,
		}
	}
	return out, nil
}
