// Package orchestrator drives one ingest-filter-enqueue-publish cycle
// across every active parser, isolating a single source's or parser's
// failure from the rest of the run and reporting an unhandled failure to
// an optional janitor endpoint without ever masking it from the logs.
//
// Grounded on original_source/echobot/runners/echo.py's Echo.run: the
// per-parser/per-source loop, the three-stage filter chain
// (_is_already_seen, _is_valid_date, _is_valid_keyword_profile), marking
// survivors seen before PostProcess, and the per-parser
// Deduplicate->Sort->Save commit boundary meant to isolate one parser's
// failure from another's already-saved queue state.
package orchestrator

import (
	"context"
	"runtime/debug"
	"time"

	"feedbot/internal/domain/filters"
	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/queue"
	"feedbot/internal/infra/janitor"
	"feedbot/internal/infra/logger"
	"feedbot/internal/publisher"
)

// runner is implemented by parsers that need a connection/session
// established around the whole per-source loop (Telegram's MTProto
// session). Parsers without this need run the loop directly.
type runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options tunes the orchestrator's filter chain.
type Options struct {
	AppName          string
	MaxPostAgeMonths int
}

// Orchestrator wires the active parsers, the shared filter engine, the
// durable queue, and the Publisher into one run.
type Orchestrator struct {
	parsers   []parser.Parser
	filters   *filters.Engine
	queue     *queue.Queue
	publisher *publisher.Publisher
	janitor   *janitor.Notifier
	opts      Options
}

// New builds an Orchestrator. parsers should already be filtered down to
// the ones enabled by configuration; queue must already be loaded.
func New(
	parsers []parser.Parser,
	filterEngine *filters.Engine,
	q *queue.Queue,
	pub *publisher.Publisher,
	jan *janitor.Notifier,
	opts Options,
) *Orchestrator {
	if opts.MaxPostAgeMonths <= 0 {
		opts.MaxPostAgeMonths = 6
	}
	return &Orchestrator{
		parsers:   parsers,
		filters:   filterEngine,
		queue:     q,
		publisher: pub,
		janitor:   jan,
		opts:      opts,
	}
}

// Run executes one full cycle: ingest+enqueue for every active parser,
// then drain the queue through the Publisher. A failure anywhere in the
// cycle is reported to the janitor (if configured) and returned, never
// silently swallowed.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Infof("orchestrator: starting run")

	if err := o.runParsers(ctx); err != nil {
		o.notifyJanitor(ctx, err)
		return err
	}

	if err := o.publisher.PublishAll(ctx); err != nil {
		o.notifyJanitor(ctx, err)
		return err
	}

	logger.Infof("orchestrator: run complete")
	return nil
}

func (o *Orchestrator) notifyJanitor(ctx context.Context, cause error) {
	logger.Errorf("orchestrator: run failed: %v", cause)
	o.janitor.Notify(ctx, o.opts.AppName, cause, string(debug.Stack()))
}

func (o *Orchestrator) runParsers(ctx context.Context) error {
	for _, p := range o.parsers {
		logger.Infof("orchestrator: processing parser %s", p.Name())

		process := func(ctx context.Context) error { return o.runParser(ctx, p) }
		if r, ok := p.(runner); ok {
			if err := r.Run(ctx, process); err != nil {
				return err
			}
			continue
		}
		if err := process(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runParser walks every configured source of one parser and commits the
// queue once the whole parser has finished, isolating its failures from
// parsers already committed earlier in the run.
func (o *Orchestrator) runParser(ctx context.Context, p parser.Parser) error {
	for source, params := range p.Sources() {
		logger.Infof("orchestrator: processing source %s/%s", p.Name(), source)

		posts, err := p.FetchRaw(ctx, source)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logger.Warnf("orchestrator: skipping source %s/%s: %v", p.Name(), source, err)
			continue
		}

		survivors := o.applyFilterChain(p, source, params, posts)

		if err := p.MarkSeen(source, idsOf(survivors)); err != nil {
			logger.Warnf("orchestrator: failed to persist seen state for %s/%s: %v", p.Name(), source, err)
		}

		processed, err := p.PostProcess(source, survivors)
		if err != nil {
			logger.Warnf("orchestrator: post-process failed for %s/%s: %v", p.Name(), source, err)
			continue
		}

		for i := range processed {
			qp := &processed[i]
			if err := p.ParseMedia(ctx, qp); err != nil {
				logger.Warnf("orchestrator: media parse failed for %s: %v", qp.ID, err)
			}
			if err := p.FormatPost(source, qp); err != nil {
				logger.Warnf("orchestrator: format failed for %s: %v", qp.ID, err)
				continue
			}
			o.queue.Append(*qp)
		}
	}

	o.queue.Deduplicate()
	o.queue.Sort()
	return o.queue.Save()
}

// applyFilterChain runs the already-seen, age, and keyword-profile filters
// in that order, matching Echo.run's discard conditions. A post that fails
// any stage is dropped and logged at debug; it never reaches the queue.
func (o *Orchestrator) applyFilterChain(
	p parser.Parser,
	source string,
	params parser.SourceParams,
	posts []post.QueuePost,
) []post.QueuePost {
	survivors := make([]post.QueuePost, 0, len(posts))
	var discarded int
	for _, qp := range posts {
		if p.AlreadySeen(source, qp.ID) {
			logger.Debugf("orchestrator: discarding %s: already seen", qp.ID)
			discarded++
			continue
		}
		if !o.isWithinMaxAge(qp) {
			logger.Debugf("orchestrator: discarding %s: older than %d months", qp.ID, o.opts.MaxPostAgeMonths)
			discarded++
			continue
		}
		if params.KeywordsFilterProfile != "" && !o.filters.Allows(params.KeywordsFilterProfile, qp.RawCombinedContent) {
			logger.Debugf("orchestrator: discarding %s: rejected by profile %q", qp.ID, params.KeywordsFilterProfile)
			discarded++
			continue
		}
		survivors = append(survivors, qp)
	}
	if discarded > 0 {
		logger.Infof("orchestrator: discarded %d posts for %s/%s", discarded, p.Name(), source)
	}
	return survivors
}

// isWithinMaxAge reports whether qp is recent enough to keep. A zero
// PublishedAt (a parser that never sets it) is treated as "no age
// information available" and always passes, rather than discarding every
// post from a parser that doesn't populate the field.
func (o *Orchestrator) isWithinMaxAge(qp post.QueuePost) bool {
	if qp.PublishedAt.IsZero() {
		return true
	}
	cutoff := time.Now().UTC().AddDate(0, -o.opts.MaxPostAgeMonths, 0)
	return !qp.PublishedAt.UTC().Before(cutoff)
}

// isFatal reports whether err should abort the whole run rather than just
// skip the offending source, matching the parser error taxonomy's
// ErrConfig/"else" split.
func isFatal(err error) bool {
	_, ok := err.(*parser.ErrConfig)
	return ok
}

func idsOf(posts []post.QueuePost) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
