// Package rss implements the Parser contract for RSS/Atom feeds.
//
// Grounded line-by-line on original_source/echobot/parsers/feed_parser.py:
// title-case-if-all-caps, HTML-strip + whitespace collapse, the
// show_name/merge_content templates, truncate-to-max_length-minus-url-len,
// the language priority chain, and <img> extraction for ParseMedia.
package rss

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/grokify/html-strip-tags-go"
	"github.com/mmcdole/gofeed"

	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/seenstate"
	"feedbot/internal/infra/logger"
)

const defaultMaxSummaryLength = 300
const defaultLanguage = "en"

// Parser ingests RSS/Atom feeds.
type Parser struct {
	sources map[string]parser.SourceParams
	seen    *seenstate.Store
	fetcher *gofeed.Parser
	maxLen  int
	merge   bool
}

// New creates an RSS Parser. maxLength/mergeContent are the default.*
// settings (§6), overridden per-source by SourceParams.MaxSummaryLength.
func New(sources map[string]parser.SourceParams, seen *seenstate.Store, maxLength int, mergeContent bool) *Parser {
	if maxLength <= 0 {
		maxLength = defaultMaxSummaryLength
	}
	return &Parser{
		sources: sources,
		seen:    seen,
		fetcher: gofeed.NewParser(),
		maxLen:  maxLength,
		merge:   mergeContent,
	}
}

func (p *Parser) Name() string                            { return "rss" }
func (p *Parser) Sources() map[string]parser.SourceParams { return p.sources }

// FetchRaw pulls one feed's entries, discarding those that lack a usable
// summary or a usable published date, matching
// get_raw_content_for_source's discard rules.
func (p *Parser) FetchRaw(ctx context.Context, source string) ([]post.QueuePost, error) {
	src, ok := p.sources[source]
	if !ok {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("rss source %q not configured", source)}
	}

	feed, err := p.fetcher.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, &parser.ErrSourceUnreachable{Source: source, Err: err}
	}
	if len(feed.Items) == 0 {
		logger.Warnf("rss: source %q returned no entries", source)
		return nil, nil
	}

	language := chooseLanguage(src, feed)

	var out []post.QueuePost
	discarded := 0
	for _, item := range feed.Items {
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		if summary == "" {
			discarded++
			continue
		}

		publishedAt, ok := publishedDate(item)
		if !ok {
			discarded++
			continue
		}

		title := item.Title
		link := item.Link

		out = append(out, post.QueuePost{
			ID: stripScheme(link),
			RawContent: map[string]string{
				"url":   link,
				"title": title,
				"body":  summary,
			},
			RawCombinedContent: title + " " + summary,
			PublishedAt:        publishedAt,
			Language:           language,
		})
	}
	logger.Debugf("rss: discarded %d invalid entries from %s", discarded, source)
	return out, nil
}

func (p *Parser) AlreadySeen(source, id string) bool { return p.seen.AlreadySeen(source, id) }
func (p *Parser) MarkSeen(source string, ids []string) error {
	return p.seen.MarkSeen(source, ids)
}

// PostProcess is the identity transform: RSS posts are not grouped.
func (p *Parser) PostProcess(source string, posts []post.QueuePost) ([]post.QueuePost, error) {
	return posts, nil
}

var imgTagRE = regexp.MustCompile(`(?is)<img[^>]+src=["']([^"']+)["'](?:[^>]*?\salt=["']([^"']*)["'])?[^>]*>`)

// ParseMedia extracts <img> tags from the post's combined raw content.
func (p *Parser) ParseMedia(ctx context.Context, qp *post.QueuePost) error {
	matches := imgTagRE.FindAllStringSubmatch(qp.RawCombinedContent, -1)
	media := make([]post.QueuePostMedia, 0, len(matches))
	for _, m := range matches {
		media = append(media, post.QueuePostMedia{URL: m[1], AltText: m[2]})
	}
	qp.Media = media
	return nil
}

// FormatPost renders Summary/Text per format_post_for_source.
func (p *Parser) FormatPost(source string, qp *post.QueuePost) error {
	src, ok := p.sources[source]
	if !ok {
		return &parser.ErrConfig{Err: fmt.Errorf("rss source %q not configured", source)}
	}

	title := ""
	if raw, ok := qp.RawContent["title"]; ok {
		title = titleCaseIfShouting(raw)
	}

	body := ""
	if raw, ok := qp.RawContent["body"]; ok && raw != "" {
		body = cleanBody(raw)
	}

	if src.ShowName {
		title = fmt.Sprintf("%s\t%s", source, title)
	}

	maxLength := p.maxLen
	if src.MaxSummaryLength > 0 {
		maxLength = src.MaxSummaryLength
	}

	if p.merge {
		body = fmt.Sprintf("%s\n\n%s", title, body)
		title = ""
	}

	link := qp.RawContent["url"]
	urlLen := len(link) + len("\n\n")
	if len(body)+urlLen > maxLength {
		cut := maxLength - urlLen - 3
		if cut < 0 {
			cut = 0
		}
		if cut < len(body) {
			body = body[:cut] + "..."
		}
	}

	qp.Summary = title
	qp.Text = fmt.Sprintf("%s\n\n%s", body, link)
	return nil
}

// titleCaseIfShouting title-cases a title that is entirely uppercase
// (ignoring a leading run of letters, matching the original's regex),
// leaving mixed-case titles untouched.
func titleCaseIfShouting(title string) string {
	rest := leadingLettersRE.ReplaceAllString(title, "")
	if rest != "" && rest == strings.ToUpper(rest) {
		words := strings.Split(strings.ToLower(title), " ")
		for i, w := range words {
			if w == "" {
				continue
			}
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	}
	return title
}

var leadingLettersRE = regexp.MustCompile(`^[A-Za-z]*`)

// cleanBody strips HTML tags, collapses repeated blank lines and
// whitespace, and trims the result.
func cleanBody(raw string) string {
	body := raw + "\n\n"
	body = strip.StripTags(body)
	body = strings.ReplaceAll(body, "\n\n\n", "\n\n")
	body = collapseWhitespaceRE.ReplaceAllString(body, " ")
	return strings.Trim(body, " ")
}

var collapseWhitespaceRE = regexp.MustCompile(`\s+`)

// chooseLanguage implements __choose_language_for_source's priority chain:
// override-with-default > feed-level language > source default > "en".
func chooseLanguage(src parser.SourceParams, feed *gofeed.Feed) string {
	language := defaultLanguage
	if src.LanguageDefault != "" {
		language = src.LanguageDefault
	}
	if src.LanguageOverride && src.LanguageDefault != "" {
		return src.LanguageDefault
	}
	if feed.Language != "" {
		language = feed.Language
	}
	return language
}

// publishedDate resolves a post's timestamp from the feed's parsed struct
// time, falling back to free-form parsing of the raw published string.
func publishedDate(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.Published != "" {
		if t, err := dateparse.ParseAny(item.Published); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stripScheme drops a URL's "scheme:" prefix and keeps the "//" that
// follows it ("https://site/a" becomes "//site/a"), matching Url.clean's
// {"scheme": True} option in feed_parser.py. A site migrating from http to
// https between runs must not be treated as a brand-new, unseen URL.
func stripScheme(link string) string {
	if idx := strings.Index(link, "://"); idx >= 0 {
		return link[idx+len(":"):]
	}
	return link
}
