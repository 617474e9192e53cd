// Package telegram implements the Parser contract for Telegram channels and
// chats. grouping.go is the pure grouping/splitting engine: it has no
// network dependency and is unit-testable standalone, grounded directly on
// original_source/echobot/parsers/telegram_parser.py's _group_posts and
// _process_group_of_posts_for_source.
package telegram

import (
	"fmt"
	"math"
	"time"

	"feedbot/internal/domain/post"
)

const (
	maxMediaPerStatus  = 4
	defaultStatusLen   = 400
	threadSuffixFormat = "🧵 %02d/%02d"
)

// RawMessage is the grouping engine's view of one upstream Telegram
// message: just enough to decide group boundaries and accumulate text/media,
// independent of the gotd wire types client.go deals with.
type RawMessage struct {
	ID       int
	Text     string
	Date     time.Time
	HasMedia bool
	// MediaRef identifies the media attached to this message (a gotd
	// document reference, resolved to a URL/path by client.go before
	// download); opaque to the grouping engine.
	MediaRef string
	MimeType string
}

// GroupMessages splits a chronologically ordered message stream into
// groups that must publish contiguously: a new group starts whenever more
// than a minute has elapsed since the previous message, or whenever a
// message carries its own text (treated as the start of a fresh post even
// if it arrives moments after a media-only message).
func GroupMessages(messages []RawMessage) [][]RawMessage {
	var groups [][]RawMessage
	var current []RawMessage
	var lastPost *RawMessage

	for i := range messages {
		m := messages[i]
		if lastPost == nil {
			current = append(current, m)
		} else {
			newGroup := m.Date.Sub(lastPost.Date) > time.Minute || m.Text != ""
			if newGroup {
				groups = append(groups, current)
				current = nil
			}
			current = append(current, m)
		}
		lastPost = &m
	}
	groups = append(groups, current)
	return groups
}

// GroupingOptions tunes ProcessGroup's splitting thresholds.
// MaxStatusLength is sourced from default.max_length (§6); MaxMediaPerPost
// has no config key and falls back to 4 when left zero, as telegram_parser.py
// hardcodes it as a class constant.
type GroupingOptions struct {
	MaxStatusLength int
	MaxMediaPerPost int
}

func (o GroupingOptions) withDefaults() GroupingOptions {
	if o.MaxStatusLength <= 0 {
		o.MaxStatusLength = defaultStatusLen
	}
	if o.MaxMediaPerPost <= 0 {
		o.MaxMediaPerPost = maxMediaPerStatus
	}
	return o
}

// ProcessGroup unrolls one message group into the QueuePosts it must split
// into, given text-length and media-count caps, and assigns every emitted
// post the same Group id so the Publisher keeps them contiguous.
func ProcessGroup(group []RawMessage, language string, opts GroupingOptions) []post.QueuePost {
	opts = opts.withDefaults()

	var text string
	var mediaStack []RawMessage
	var statusDate time.Time

	for _, m := range group {
		if m.HasMedia {
			mediaStack = append(mediaStack, m)
		}
		if m.Text != "" {
			if text != "" {
				text += "\n\n" + m.Text
			} else {
				text = m.Text
			}
		}
		if statusDate.IsZero() {
			statusDate = m.Date
		}
	}

	maxStatusLength := opts.MaxStatusLength
	if len(text) > maxStatusLength || len(mediaStack) > opts.MaxMediaPerPost {
		maxStatusLength -= threadSuffixLength()
	}

	numByText := 1
	if len(text) > maxStatusLength {
		numByText = int(math.Ceil(float64(len(text)) / float64(maxStatusLength)))
	}
	numByMedia := 1
	if len(mediaStack) > opts.MaxMediaPerPost {
		numByMedia = int(math.Ceil(float64(len(mediaStack)) / float64(opts.MaxMediaPerPost)))
	}
	numStatuses := numByText
	if numByMedia > numStatuses {
		numStatuses = numByMedia
	}

	groupID := post.GroupHash(text)

	posts := make([]post.QueuePost, 0, numStatuses)
	remainingText := text
	for idx := 0; idx < numStatuses; idx++ {
		statusNum := idx + 1

		var mediaToPost []RawMessage
		for len(mediaStack) > 0 && len(mediaToPost) < opts.MaxMediaPerPost {
			mediaToPost = append(mediaToPost, mediaStack[0])
			mediaStack = mediaStack[1:]
		}

		var textToPost string
		if numStatuses > 1 {
			cut := remainingText
			if len(cut) > maxStatusLength {
				cut = cut[:maxStatusLength]
			}
			textToPost = fmt.Sprintf("%s\n\n%s", cut, fmt.Sprintf(threadSuffixFormat, statusNum, numStatuses))
			if len(remainingText) > maxStatusLength {
				remainingText = remainingText[maxStatusLength:]
			} else {
				remainingText = ""
			}
		} else {
			textToPost = remainingText
		}

		media := make([]post.QueuePostMedia, 0, len(mediaToPost))
		for _, m := range mediaToPost {
			media = append(media, post.QueuePostMedia{URL: m.MediaRef, MimeType: m.MimeType})
		}

		posts = append(posts, post.QueuePost{
			ID:          post.PostHash(textToPost),
			Group:       groupID,
			RawContent:  map[string]string{"body": textToPost},
			Media:       media,
			PublishedAt: statusDate,
			Language:    language,
		})
	}

	return posts
}

func threadSuffixLength() int {
	return len(fmt.Sprintf(threadSuffixFormat, 0, 0)) + len("\n\n")
}
