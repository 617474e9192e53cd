// Package publisher drains the durable queue against a remote API
// adapter, one post at a time, preserving thread linkage across a group
// of posts produced by the Telegram splitter and discarding a post that
// exhausts its retry budget rather than blocking the rest of the queue.
//
// Grounded line-by-line on original_source/echobot/lib/publisher.py:
// _execute_action (the new/reblog branch, media upload ordering, the
// truncate-then-drop-if-empty rule, the retry loop), publish_all_from_queue
// (the Draining/PostingOne/Retrying state machine and the
// only_oldest_post_every_iteration early exit) and
// __next_in_queue_matches_group_id (thread-linkage lookahead). The
// MAX_RETRIES/SLEEP_TIME fixed-interval retry is expressed with
// cenkalti/backoff/v4's ConstantBackOff, the same retry library the
// syndication pack already depends on.
package publisher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/queue"
	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/mediacache"
	"feedbot/internal/remoteapi"
)

// Options tunes the publisher's retry and batching behavior; all fields
// correspond 1:1 to Publisher's STATUS_PARAMS/MAX_RETRIES/SLEEP_TIME and
// the publisher.* config keys (§6).
type Options struct {
	DryRun           bool
	MaxRetries       int
	SleepTime        time.Duration
	MaxLength        int
	Visibility       string
	OnlyOldestPerRun bool
}

// Publisher drains a Queue against a remoteapi.Client, downloading/
// uploading media as needed via a mediacache.Cache.
type Publisher struct {
	queue  *queue.Queue
	client *remoteapi.Client
	media  *mediacache.Cache
	opts   Options
}

// New creates a Publisher. queue must already be loaded by the caller
// (app.New loads it once per invocation, before any parser runs).
func New(q *queue.Queue, client *remoteapi.Client, media *mediacache.Cache, opts Options) *Publisher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.SleepTime <= 0 {
		opts.SleepTime = 30 * time.Second
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 1000
	}
	if opts.Visibility == "" {
		opts.Visibility = "public"
	}
	return &Publisher{queue: q, client: client, media: media, opts: opts}
}

// PublishAll drains the queue front-to-back per §4.7's state machine,
// saving the queue after the drain (skipped entirely in dry-run mode, so
// a dry run never mutates on-disk state).
func (p *Publisher) PublishAll(ctx context.Context) error {
	if p.queue.IsEmpty() {
		logger.Infof("publisher: queue is empty, skipping")
		return nil
	}

	var previousID string
	for !p.queue.IsEmpty() {
		qp, ok := p.queue.PopFront()
		if !ok {
			break
		}

		result, err := p.executeAction(ctx, qp, previousID)
		if err != nil {
			logger.Warnf("publisher: discarding post %s after exhausting retries: %v", qp.ID, err)
			previousID = ""
		} else if result != "" {
			previousID = result
			logger.Debugf("publisher: post %s published as %s", qp.ID, result)
		} else {
			// Dry run or deliberately skipped (no media, no text).
			previousID = ""
		}

		if previousID != "" && p.nextMatchesGroup(qp.Group) {
			continue
		}
		previousID = ""
		if p.opts.OnlyOldestPerRun {
			logger.Infof("publisher: only_oldest_post_every_iteration set, stopping after one post")
			break
		}
	}

	if p.opts.DryRun {
		return nil
	}
	return p.queue.Save()
}

// nextMatchesGroup reports whether the queue's current front post shares
// group with the just-published post, meaning the thread must continue.
func (p *Publisher) nextMatchesGroup(group string) bool {
	if group == "" {
		return false
	}
	next, ok := p.queue.PeekFront()
	if !ok {
		return false
	}
	return next.Group == group
}

// executeAction publishes one QueuePost and returns the remote status id
// it was published as (empty string if skipped/dry-run).
func (p *Publisher) executeAction(ctx context.Context, qp post.QueuePost, previousID string) (string, error) {
	if p.opts.DryRun {
		logger.Debugf("publisher: dry run, not publishing %s", qp.ID)
		return "", nil
	}

	if qp.Action.Kind == post.ActionReblog {
		logger.Infof("publisher: reblogging %s", qp.Action.RemoteID)
		status, err := p.client.StatusReblog(ctx, qp.Action.RemoteID)
		if err != nil {
			return "", err
		}
		return string(status.ID), nil
	}

	return p.publishNew(ctx, qp, previousID)
}

// publishNew implements the ActionNew branch of _execute_action: upload
// media in order, truncate the text, drop if both are empty, then post
// with a fixed-interval retry.
func (p *Publisher) publishNew(ctx context.Context, qp post.QueuePost, previousID string) (string, error) {
	mediaIDs := p.uploadMedia(ctx, qp)

	text := sliceIfLongerThan(qp.Text, p.opts.MaxLength)
	if len(mediaIDs) == 0 && text == "" {
		logger.Warnf("publisher: no media and no body for %s, skipping", qp.ID)
		return "", nil
	}

	req := remoteapi.StatusPostRequest{
		Text:        text,
		Language:    qp.Language,
		InReplyToID: previousID,
		MediaIDs:    mediaIDs,
		Visibility:  p.opts.Visibility,
	}

	status, err := p.postWithRetry(ctx, req, qp.ID)
	if err != nil {
		return "", err
	}
	return status.ID, nil
}

// uploadMedia uploads each media item in order, downloading from URL first
// when no local path is already set; unusable items (neither) are logged
// and skipped rather than aborting the whole post.
func (p *Publisher) uploadMedia(ctx context.Context, qp post.QueuePost) []string {
	var ids []string
	for _, m := range qp.Media {
		path := m.Path
		if path == "" {
			if m.URL == "" {
				logger.Warnf("publisher: media item for %s has neither url nor path, skipping", qp.ID)
				continue
			}
			downloaded, err := p.media.Fetch(ctx, qp.ID, m.URL)
			if err != nil {
				logger.Warnf("publisher: could not download media for %s: %v", qp.ID, err)
				continue
			}
			path = downloaded
		}
		id, err := p.client.MediaPost(ctx, path)
		if err != nil {
			logger.Warnf("publisher: could not post media %s: %v", path, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// postWithRetry calls StatusPost with a fixed-interval retry: on failure,
// sleep SleepTime and retry, giving up after MaxRetries attempts and
// returning the last error (the caller then discards the post).
func (p *Publisher) postWithRetry(ctx context.Context, req remoteapi.StatusPostRequest, postID string) (result *statusResult, err error) {
	attempt := 0
	// WithMaxRetries counts retries *after* the first attempt, so passing
	// MaxRetries directly would yield MaxRetries+1 total attempts. MAX_RETRIES
	// names the total attempt budget (publisher.py's retry loop breaks once
	// retry >= MAX_RETRIES, giving exactly MAX_RETRIES total tries), so the
	// retry count handed to backoff is one less, floored at zero.
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.opts.SleepTime), maxRetriesAfterFirst(p.opts.MaxRetries)),
		ctx,
	)

	op := func() error {
		logger.Infof("publisher: posting %s (attempt %d): %q", postID, attempt, truncateForLog(req.Text))
		status, postErr := p.client.StatusPost(ctx, req)
		attempt++
		if postErr != nil {
			return postErr
		}
		result = &statusResult{ID: string(status.ID)}
		return nil
	}

	if bErr := backoff.Retry(op, policy); bErr != nil {
		return nil, &parser.ErrRemotePublishFailed{PostID: postID, Err: bErr}
	}
	return result, nil
}

// statusResult is the minimal published-status shape postWithRetry needs,
// avoiding a direct mastodon.Status dependency in this file.
type statusResult struct{ ID string }

// maxRetriesAfterFirst converts a total-attempt budget into the retry count
// backoff.WithMaxRetries expects (retries beyond the initial attempt).
// maxRetries <= 1 means no retries: one attempt only.
func maxRetriesAfterFirst(maxRetries int) uint64 {
	if maxRetries <= 1 {
		return 0
	}
	return uint64(maxRetries - 1)
}

// sliceIfLongerThan ellipsizes status to maxLength, matching
// __slice_status_if_longer_than_defined.
func sliceIfLongerThan(status string, maxLength int) string {
	if len(status) <= maxLength {
		return status
	}
	if maxLength < 3 {
		return status[:maxLength]
	}
	return status[:maxLength-3] + "..."
}

func truncateForLog(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
