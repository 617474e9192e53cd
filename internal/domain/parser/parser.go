// Package parser defines the uniform ingestion contract every source-
// specific parser (RSS, Telegram, Mastodon) implements, plus the error
// taxonomy the orchestrator uses to decide whether a failure aborts the run
// or is merely logged and skipped.
package parser

import (
	"context"
	"fmt"

	"feedbot/internal/domain/post"
)

// Parser is the capability set every source-specific ingester satisfies.
// FetchRaw populates IDs but performs no filtering; PostProcess defaults to
// identity and is where grouping/splitting (Telegram) happens; ParseMedia
// and FormatPost run only on survivors of the orchestrator's filter chain.
type Parser interface {
	// Name identifies this parser for logging and seen-state namespacing.
	Name() string
	// Sources returns the configured sources this parser will ingest from.
	Sources() map[string]SourceParams
	// FetchRaw pulls raw items for one source. IDs are populated; nothing
	// is filtered yet.
	FetchRaw(ctx context.Context, source string) ([]post.QueuePost, error)
	// AlreadySeen reports whether id has already been marked seen for source.
	AlreadySeen(source, id string) bool
	// MarkSeen persists ids as seen for source. Idempotent; must persist
	// before returning.
	MarkSeen(source string, ids []string) error
	// PostProcess transforms survivors of the filter chain, e.g. grouping
	// and splitting. The default behavior is the identity transform.
	PostProcess(source string, posts []post.QueuePost) ([]post.QueuePost, error)
	// ParseMedia mutates p.Media in place. May download content or defer
	// that to the Publisher.
	ParseMedia(ctx context.Context, p *post.QueuePost) error
	// FormatPost sets the final Text/Summary on p.
	FormatPost(source string, p *post.QueuePost) error
}

// SourceParams is the per-source configuration every parser reads to
// decide what and how to ingest; fields irrelevant to a given parser are
// left zero.
type SourceParams struct {
	Name                  string
	URL                   string
	ID                    string
	LanguageDefault       string
	LanguageOverride      bool
	MaxSummaryLength      int
	ShowName              bool
	KeywordsFilterProfile string
	AutoFollow            bool
	Toots                 bool
	Retoots               bool
}

// ErrConfig wraps a malformed on-disk config or state document. Fatal: the
// orchestrator aborts the run.
type ErrConfig struct{ Err error }

func (e *ErrConfig) Error() string { return fmt.Sprintf("config error: %v", e.Err) }
func (e *ErrConfig) Unwrap() error { return e.Err }

// ErrSourceUnreachable wraps a transient network failure reaching an
// upstream. The orchestrator skips this source and continues.
type ErrSourceUnreachable struct {
	Source string
	Err    error
}

func (e *ErrSourceUnreachable) Error() string {
	return fmt.Sprintf("source %q unreachable: %v", e.Source, e.Err)
}
func (e *ErrSourceUnreachable) Unwrap() error { return e.Err }

// ErrSourceMalformed wraps unparseable upstream data. The orchestrator
// skips this source and continues.
type ErrSourceMalformed struct {
	Source string
	Err    error
}

func (e *ErrSourceMalformed) Error() string {
	return fmt.Sprintf("source %q malformed: %v", e.Source, e.Err)
}
func (e *ErrSourceMalformed) Unwrap() error { return e.Err }

// ErrMediaUnavailable wraps a single media item that could not be fetched
// or uploaded. The post still publishes with its remaining media.
type ErrMediaUnavailable struct {
	Item string
	Err  error
}

func (e *ErrMediaUnavailable) Error() string {
	return fmt.Sprintf("media %q unavailable: %v", e.Item, e.Err)
}
func (e *ErrMediaUnavailable) Unwrap() error { return e.Err }

// ErrRemotePublishFailed wraps a publication attempt that threw. Retried up
// to MAX_RETRIES with SLEEP_TIME backoff by the Publisher; on exhaustion
// the post is discarded and the queue continues.
type ErrRemotePublishFailed struct {
	PostID string
	Err    error
}

func (e *ErrRemotePublishFailed) Error() string {
	return fmt.Sprintf("publish %q failed: %v", e.PostID, e.Err)
}
func (e *ErrRemotePublishFailed) Unwrap() error { return e.Err }

// ErrFilterRejected is not a failure; it signals a post was deliberately
// dropped by the keyword filter chain. Logged at debug, never propagated
// as a run-level error.
type ErrFilterRejected struct {
	Reason string
}

func (e *ErrFilterRejected) Error() string { return fmt.Sprintf("filter rejected: %s", e.Reason) }
