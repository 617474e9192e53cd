// Package filters implements the keyword-filter profile matching
// predicate: an ordered pipeline of include/exclude conditions applied to
// plain text.
//
// This is a generalization of the base repository's
// domain/filters/matcher.go, which matched a gotd tg.Message against a
// Telegram-peer-scoped Filter. The syndication bot's keyword profiles
// apply to any source's text (RSS entry body, Telegram post text, Mastodon
// status content) identified by name rather than by chat membership, so
// the per-peer ProcessMessage wrapper is gone but the matching pipeline
// and ContainsSmart's Unicode word-boundary behavior are unchanged.
package filters

import (
	"regexp"
	"strings"

	"feedbot/internal/infra/logger"
)

// Match holds the include/exclude conditions of one profile. Pipeline
// order: includeRegex (OR) -> includeKeywordsAll (AND) ->
// includeKeywordsAny (OR) -> excludeByKeywords (OR, rejects) ->
// excludeByRegex (OR, rejects).
type Match struct {
	Regex              []string `json:"regex,omitempty"`
	KeywordsAll        []string `json:"keywords_all,omitempty"`
	KeywordsAny        []string `json:"keywords_any,omitempty"`
	ExcludeKeywordsAny []string `json:"exclude_keywords_any,omitempty"`
	ExcludeRegex       []string `json:"exclude_regex,omitempty"`
}

// Profile is one named keyword-filter configuration, referenced by a
// source's keywords_filter_profile setting.
type Profile struct {
	Name  string `json:"name"`
	Match Match  `json:"match"`
}

// Result is the detailed outcome of matching text against a profile.
type Result struct {
	Matched    bool
	Keywords   []string
	RegexMatch string
}

// ProfileAllowsText reports whether text survives the profile's full
// pipeline. It is the predicate behind Engine.Allows, which the
// orchestrator's filter chain calls for every parser's posts and the
// Mastodon parser calls on status content, whenever the source names a
// keywords_filter_profile.
func ProfileAllowsText(p Profile, text string) bool {
	return MatchText(text, p.Match).Matched
}

// MatchText runs the full pipeline for one profile against text.
func MatchText(text string, m Match) Result {
	result := Result{}

	if matched, ok, err := includeRegex(text, m.Regex); ok {
		result.RegexMatch = matched
	} else {
		if err != nil {
			logger.Errorf("filters: includeRegex error: %v", err)
		}
		return Result{}
	}

	if matched, ok := includeKeywordsAll(text, m.KeywordsAll); ok {
		result.Keywords = append(result.Keywords, matched...)
	} else {
		return Result{}
	}

	if matched, ok := includeKeywordsAny(text, m.KeywordsAny); ok {
		result.Keywords = append(result.Keywords, matched...)
	} else {
		return Result{}
	}

	if excludeByKeywords(text, m.ExcludeKeywordsAny) {
		return Result{}
	}

	if ok, err := excludeByRegex(text, m.ExcludeRegex); ok {
		return Result{}
	} else if err != nil {
		logger.Errorf("filters: excludeByRegex error: %v", err)
		return Result{}
	}

	result.Keywords = dedupPreserveOrderCI(result.Keywords)
	result.Matched = true
	return result
}

func dedupPreserveOrderCI(ss []string) []string {
	if len(ss) <= 1 {
		return ss
	}
	seen := make(map[string]struct{}, len(ss))
	out := ss[:0]
	for _, s := range ss {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// includeRegex compiles and applies a positive regexp list (OR). An empty
// pattern list, or any empty pattern within it, is treated as always
// matching. Uses FindString, so matches are substrings, not full matches.
func includeRegex(text string, patterns []string) (string, bool, error) {
	if len(patterns) == 0 {
		return "", true, nil
	}
	for _, p := range patterns {
		if p == "" {
			return "", true, nil
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return "", false, err
		}
		if match := re.FindString(text); match != "" {
			return match, true, nil
		}
	}
	return "", false, nil
}

// includeKeywordsAll requires every keyword to be present (case
// insensitive). An empty list is vacuously satisfied.
func includeKeywordsAll(text string, keywords []string) ([]string, bool) {
	if len(keywords) == 0 {
		return nil, true
	}
	matched := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if !ContainsSmart(text, kw) {
			return nil, false
		}
		matched = append(matched, kw)
	}
	return matched, true
}

// includeKeywordsAny requires at least one keyword present. An empty list
// is vacuously satisfied.
func includeKeywordsAny(text string, keywords []string) ([]string, bool) {
	if len(keywords) == 0 {
		return nil, true
	}
	matched := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if ContainsSmart(text, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return nil, false
	}
	return matched, true
}

// excludeByKeywords rejects if any forbidden keyword is present.
func excludeByKeywords(text string, keywords []string) bool {
	for _, kw := range keywords {
		if ContainsSmart(text, kw) {
			return true
		}
	}
	return false
}

// excludeByRegex rejects if any forbidden pattern matches.
func excludeByRegex(text string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return false, nil
	}
	if matched, ok, err := includeRegex(text, patterns); ok && matched != "" {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return false, nil
}

// ContainsSmart reports whether kw occurs in text at a Unicode word
// boundary, case-insensitively: (?i)(^|[^\p{L}\p{N}])<kw>([^\p{L}\p{N}]|$).
func ContainsSmart(text, kw string) bool {
	if kw == "" {
		return false
	}
	pattern := `(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(kw) + `([^\p{L}\p{N}]|$)`
	re := regexp.MustCompile(pattern)
	return re.FindStringIndex(text) != nil
}
