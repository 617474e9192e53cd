// Package post defines the pipeline's universal currency: the normalized,
// publishable unit every parser produces and the Publisher consumes.
//
// A QueuePost carries both persisted fields (surviving a Queue.Save/Load
// round trip) and transient enrichment fields used only during the current
// run (raw_content, raw_combined_content). The split exists because the
// transient fields may hold upstream library objects that are not safe or
// meaningful to serialize, and because re-formatting a post should never
// require re-fetching it from the source.
package post

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// ActionKind tags which remote operation a QueuePost resolves to.
type ActionKind int

const (
	// ActionNew publishes a fresh status built from Text/Media/Language/Summary.
	ActionNew ActionKind = iota
	// ActionReblog boosts an existing remote status identified by RemoteID.
	ActionReblog
)

func (k ActionKind) String() string {
	switch k {
	case ActionReblog:
		return "reblog"
	default:
		return "new"
	}
}

// Action is the tagged `{New, Reblog(remote_id)}` variant from the data
// model. RemoteID is only meaningful when Kind == ActionReblog.
type Action struct {
	Kind     ActionKind
	RemoteID string
}

// NewAction builds a fresh-status action.
func NewAction() Action { return Action{Kind: ActionNew} }

// ReblogAction builds a reblog action for the given upstream status id.
func ReblogAction(remoteID string) Action { return Action{Kind: ActionReblog, RemoteID: remoteID} }

// QueuePostMedia is one attachment of a QueuePost. At least one of URL/Path
// must be set; Path is populated once the Publisher (or a parser's
// ParseMedia) has materialized the content locally.
type QueuePostMedia struct {
	URL      string
	Path     string
	MimeType string
	AltText  string
}

// Valid reports whether the media item carries enough information to be
// uploaded: a remote URL to fetch, or a local path already on disk.
func (m QueuePostMedia) Valid() bool {
	return m.URL != "" || m.Path != ""
}

// QueuePost is the normalized unit flowing from parsers into the Queue and
// out through the Publisher.
type QueuePost struct {
	ID          string
	Group       string
	Action      Action
	Summary     string
	Text        string
	Language    string
	Media       []QueuePostMedia
	PublishedAt time.Time

	// Source identifies the parser/source pair this post came from, for
	// logging only. Never persisted, never part of identity.
	Source SourceRef

	// RawContent and RawCombinedContent hold pre-format payloads used by
	// filtering and late formatting. Never persisted; nil after a
	// Queue.Save/Load round trip.
	RawContent         map[string]string
	RawCombinedContent string
}

// SourceRef names the parser and source a post was ingested from.
type SourceRef struct {
	Parser string
	Source string
}

// Key identifies a queue entry for deduplication: no two entries may share
// (ID, Action).
type Key struct {
	ID     string
	Action Action
}

// Key returns the post's dedup identity.
func (p QueuePost) Key() Key { return Key{ID: p.ID, Action: p.Action} }

// GroupHash derives the shared group identifier for a set of posts that
// must publish contiguously, per the Telegram splitting algorithm: the
// SHA-1 of the full pre-split text.
func GroupHash(fullText string) string {
	sum := sha1.Sum([]byte(fullText))
	return hex.EncodeToString(sum[:])
}

// PostHash derives a single emitted post's id: the SHA-1 of that post's own
// text slice, unique per emitted post even within a shared group.
func PostHash(slice string) string {
	sum := sha1.Sum([]byte(slice))
	return hex.EncodeToString(sum[:])
}

// Record is the persistable projection of a QueuePost: exactly the fields
// named in the external queue.yaml schema. RawContent/RawCombinedContent
// are intentionally absent.
type Record struct {
	ID          string        `yaml:"id"`
	Group       string        `yaml:"group,omitempty"`
	Action      string        `yaml:"action"`
	RemoteID    string        `yaml:"remote_id,omitempty"`
	Summary     string        `yaml:"summary,omitempty"`
	Text        string        `yaml:"text,omitempty"`
	Language    string        `yaml:"language,omitempty"`
	Media       []MediaRecord `yaml:"media,omitempty"`
	PublishedAt int64         `yaml:"published_at"`
}

// MediaRecord is the persistable projection of QueuePostMedia.
type MediaRecord struct {
	URL      string `yaml:"url,omitempty"`
	Path     string `yaml:"path,omitempty"`
	MimeType string `yaml:"mime_type,omitempty"`
	AltText  string `yaml:"alt_text,omitempty"`
}

// ToRecord drops the transient fields and serializes Action/PublishedAt
// into their wire representations.
func (p QueuePost) ToRecord() Record {
	media := make([]MediaRecord, 0, len(p.Media))
	for _, m := range p.Media {
		media = append(media, MediaRecord{
			URL:      m.URL,
			Path:     m.Path,
			MimeType: m.MimeType,
			AltText:  m.AltText,
		})
	}
	return Record{
		ID:          p.ID,
		Group:       p.Group,
		Action:      p.Action.Kind.String(),
		RemoteID:    p.Action.RemoteID,
		Summary:     p.Summary,
		Text:        p.Text,
		Language:    p.Language,
		Media:       media,
		PublishedAt: p.PublishedAt.Unix(),
	}
}

// FromRecord reconstructs a QueuePost from its persisted projection.
// RawContent/RawCombinedContent come back nil, as the round-trip invariant
// requires.
func FromRecord(r Record) QueuePost {
	media := make([]QueuePostMedia, 0, len(r.Media))
	for _, m := range r.Media {
		media = append(media, QueuePostMedia{
			URL:      m.URL,
			Path:     m.Path,
			MimeType: m.MimeType,
			AltText:  m.AltText,
		})
	}
	action := NewAction()
	if r.Action == ActionReblog.String() {
		action = ReblogAction(r.RemoteID)
	}
	return QueuePost{
		ID:          r.ID,
		Group:       r.Group,
		Action:      action,
		Summary:     r.Summary,
		Text:        r.Text,
		Language:    r.Language,
		Media:       media,
		PublishedAt: time.Unix(r.PublishedAt, 0).UTC(),
	}
}
