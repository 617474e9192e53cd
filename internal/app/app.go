// Package app wires every subsystem of the syndication bot together: it
// reads the process-wide config singleton, constructs the enabled parsers
// (RSS/Telegram/Mastodon), the shared filter engine, the durable queue, the
// remote API adapter and Publisher, and the Orchestrator that drives one
// ingest+publish cycle over all of them.
//
// Grounded on the base repository's internal/app/app.go component-wiring
// discipline (construct stores -> construct engines -> construct queue ->
// register -> run), generalized from one gotd-specific MTProto client to
// three source-agnostic parsers sharing one Orchestrator.
package app

import (
	"context"
	"fmt"
	"time"

	"feedbot/internal/domain/filters"
	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/queue"
	"feedbot/internal/domain/seenstate"
	"feedbot/internal/infra/config"
	"feedbot/internal/infra/janitor"
	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/mediacache"
	"feedbot/internal/infra/sourcesconfig"
	"feedbot/internal/infra/throttle"
	"feedbot/internal/orchestrator"
	"feedbot/internal/parsers/mastodon"
	"feedbot/internal/parsers/rss"
	"feedbot/internal/parsers/telegram"
	"feedbot/internal/publisher"
	"feedbot/internal/remoteapi"
)

// App holds every long-lived component for one run of the bot. A fresh App
// is built per invocation; there is no persistent daemon loop (unlike the
// base userbot, which ran an MTProto event loop for its whole lifetime).
type App struct {
	env config.EnvConfig

	filters   *filters.Engine
	queue     *queue.Queue
	throttler *throttle.Throttler
	client    *remoteapi.Client
	janitor   *janitor.Notifier
	publisher *publisher.Publisher
	parsers   []parser.Parser

	orch *orchestrator.Orchestrator
}

// New builds an App from the already-loaded config singleton. dryRunOverride,
// when non-nil, overrides EnvConfig.PublisherDryRun (the CLI's --dry-run flag).
func New(dryRunOverride *bool) (*App, error) {
	env := config.Env()

	filterEngine := filters.NewEngine(env.FiltersFile)
	if err := filterEngine.Load(); err != nil {
		return nil, fmt.Errorf("load filter profiles: %w", err)
	}

	q := queue.New(env.QueueFile)
	if _, err := q.Load(); err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	throttler := throttle.New(env.ThrottleRPS)
	throttler.Start(context.Background())

	media := mediacache.New(env.PublisherMediaStorage)
	jan := janitor.New(env.JanitorEndpoint)

	dryRun := env.PublisherDryRun
	if dryRunOverride != nil {
		dryRun = *dryRunOverride
	}

	a := &App{
		env:       env,
		filters:   filterEngine,
		queue:     q,
		throttler: throttler,
		janitor:   jan,
	}

	// Mastodon is always the publish target, independent of whether the
	// Mastodon *ingestion* parser is enabled.
	a.client = remoteapi.New(
		env.MastodonInstanceURL,
		env.MastodonAccessToken,
		remoteapi.ParseDialect(env.MastodonDialect),
		throttler,
	)

	a.publisher = publisher.New(q, a.client, media, publisher.Options{
		DryRun:           dryRun,
		MaxRetries:       env.PublisherMaxRetries,
		SleepTime:        time.Duration(env.PublisherSleepTimeSec) * time.Second,
		MaxLength:        env.DefaultMaxLength,
		OnlyOldestPerRun: env.PublisherOnlyOldestPost,
	})

	parsers, err := a.buildParsers(media)
	if err != nil {
		return nil, err
	}
	a.parsers = parsers

	a.orch = orchestrator.New(parsers, filterEngine, q, a.publisher, jan, orchestrator.Options{
		AppName:          env.AppName,
		MaxPostAgeMonths: env.MaxPostAgeMonths,
	})

	return a, nil
}

// buildParsers instantiates every parser whose *_PARSER_ENABLED flag is
// set, loading its source list from the matching JSON document (§6).
func (a *App) buildParsers(media *mediacache.Cache) ([]parser.Parser, error) {
	var parsers []parser.Parser

	if a.env.RSSEnabled {
		sources, err := sourcesconfig.Load(a.env.FeedsConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load feed sources: %w", err)
		}
		seen := seenstate.New(a.env.FeedsStateFile)
		parsers = append(parsers, rss.New(sources, seen, a.env.DefaultMaxLength, a.env.DefaultMergeContent))
	}

	if a.env.TelegramEnabled {
		sources, err := sourcesconfig.Load(a.env.TelegramConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load telegram sources: %w", err)
		}
		seen := seenstate.New(a.env.TelegramStateFile)
		opts := telegram.ClientOptions{
			APIID:           a.env.TelegramAPIID,
			APIHash:         a.env.TelegramAPIHash,
			PhoneNumber:     a.env.TelegramPhoneNumber,
			SessionFile:     a.env.TelegramSessionFile,
			PeersCacheFile:  a.env.TelegramPeersCache,
			IgnoreOffsets:   a.env.TelegramIgnoreOffsets,
			DateToStartFrom: a.env.TelegramDateToStartFrom,
			MaxStatusLength: a.env.DefaultMaxLength,
		}
		parsers = append(parsers, telegram.New(opts, sources, seen, media))
	}

	if a.env.MastodonEnabled {
		sources, err := sourcesconfig.Load(a.env.AccountsConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load mastodon sources: %w", err)
		}
		seen := seenstate.New(a.env.MastodonSeenStateFile)
		parsers = append(parsers, mastodon.New(sources, seen, a.client, a.filters, a.env.AccountsStateFile, a.env.MastodonOnlyPublic))
	}

	return parsers, nil
}

// Run executes one full ingest+publish cycle across every enabled parser.
func (a *App) Run(ctx context.Context) error {
	defer a.throttler.Stop()
	return a.orch.Run(ctx)
}

// PublishQueue skips ingestion entirely and drains whatever is already on
// the durable queue, matching the CLI's publish-queue subcommand (§4.13).
func (a *App) PublishQueue(ctx context.Context) error {
	defer a.throttler.Stop()
	return a.publisher.PublishAll(ctx)
}

// PublishTest enqueues one synthetic post and immediately publishes it, an
// end-to-end smoke test of the configured remote credentials (§4.13).
func (a *App) PublishTest(ctx context.Context) error {
	defer a.throttler.Stop()
	a.queue.Append(post.QueuePost{
		ID:     "publish-test",
		Action: post.NewAction(),
		Text:   fmt.Sprintf("%s connectivity test", a.env.AppName),
	})
	logger.Infof("app: enqueued a synthetic post for publish-test")
	return a.publisher.PublishAll(ctx)
}
