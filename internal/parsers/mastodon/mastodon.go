// Package mastodon implements the Parser contract for monitored Mastodon/
// Pleroma/Firefish accounts.
//
// Grounded line-by-line on original_source/echobot/parsers/mastodon_parser.py:
// account resolution via account_search cached in a Storage keyed by the
// hashed handle (here storage.Document.GetHashed/SetHashed), the
// auto_follow duplicate-call guard against the bot's own following list,
// the since_id offset carried forward between runs, the visibility and
// keyword-profile filters, and the own-status/retoot distinction that both
// resolve to the same Reblog action.
package mastodon

import (
	"context"
	"fmt"

	"github.com/mattn/go-mastodon"

	"feedbot/internal/domain/filters"
	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/seenstate"
	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/storage"
	"feedbot/internal/remoteapi"
)

// Parser ingests statuses from monitored Mastodon-compatible accounts.
type Parser struct {
	sources    map[string]parser.SourceParams
	seen       *seenstate.Store
	client     *remoteapi.Client
	filters    *filters.Engine
	accounts   *storage.Document
	onlyPublic bool

	botAccountID     string
	followingChecked bool
	following        map[string]bool
}

// New creates a Mastodon Parser. accountsFile persists resolved account
// ids across runs (accounts.yaml), sparing a repeat account_search call
// for every source on every run.
func New(
	sources map[string]parser.SourceParams,
	seen *seenstate.Store,
	client *remoteapi.Client,
	filterEngine *filters.Engine,
	accountsFile string,
	onlyPublic bool,
) *Parser {
	return &Parser{
		sources:    sources,
		seen:       seen,
		client:     client,
		filters:    filterEngine,
		accounts:   storage.NewDocument(accountsFile),
		onlyPublic: onlyPublic,
	}
}

func (p *Parser) Name() string                            { return "mastodon" }
func (p *Parser) Sources() map[string]parser.SourceParams { return p.sources }

// resolveAccount returns the account id for source's configured handle,
// reusing the cached id if one was stored by a previous run, auto-
// following when configured and not already followed.
func (p *Parser) resolveAccount(ctx context.Context, source string, src parser.SourceParams) (string, error) {
	if id, ok := cachedAccountID(p.accounts.GetHashed(src.ID)); ok {
		return id, nil
	}

	found, err := p.client.AccountSearch(ctx, src.ID)
	if err != nil {
		return "", &parser.ErrSourceUnreachable{Source: source, Err: err}
	}
	accountID := string(found.ID)

	if src.AutoFollow {
		if err := p.ensureFollowing(ctx, accountID, src.ID); err != nil {
			logger.Warnf("mastodon: auto_follow for %s failed: %v", src.ID, err)
		}
	}

	p.accounts.SetHashed(src.ID, map[string]any{"id": accountID})
	if err := p.accounts.WriteFile(); err != nil {
		logger.Warnf("mastodon: failed to persist account cache: %v", err)
	}
	return accountID, nil
}

// ensureFollowing follows accountID unless the bot already does, matching
// the guard against a redundant account_follow call. The bot's own
// following list is fetched at most once per run.
func (p *Parser) ensureFollowing(ctx context.Context, accountID, handle string) error {
	if !p.followingChecked {
		me, err := p.client.Me(ctx)
		if err != nil {
			return fmt.Errorf("resolve bot account: %w", err)
		}
		p.botAccountID = string(me.ID)
		following, err := p.client.AccountFollowing(ctx, p.botAccountID)
		if err != nil {
			return fmt.Errorf("list following: %w", err)
		}
		p.following = following
		p.followingChecked = true
	}
	if p.following[accountID] {
		logger.Debugf("mastodon: already following %s, skipping", handle)
		return nil
	}
	logger.Infof("mastodon: following account %s", handle)
	if err := p.client.AccountFollow(ctx, accountID); err != nil {
		return err
	}
	p.following[accountID] = true
	return nil
}

// FetchRaw pulls new statuses for one configured account, per §4.6: resolve
// the account id, fetch statuses since the last seen one, and apply the
// visibility/keyword/reply filters before building QueuePosts.
func (p *Parser) FetchRaw(ctx context.Context, source string) ([]post.QueuePost, error) {
	src, ok := p.sources[source]
	if !ok {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("mastodon source %q not configured", source)}
	}

	accountID, err := p.resolveAccount(ctx, source, src)
	if err != nil {
		return nil, err
	}

	sinceID := ""
	if max := p.seen.MaxSeenID(source); max > 0 {
		sinceID = fmt.Sprintf("%d", max)
	}

	statuses, err := p.client.AccountStatuses(ctx, accountID, sinceID)
	if err != nil {
		return nil, &parser.ErrSourceUnreachable{Source: source, Err: err}
	}
	if len(statuses) == 0 {
		logger.Debugf("mastodon: no new toots for %s (may be a federation delay)", src.ID)
		return nil, nil
	}

	var out []post.QueuePost
	for _, st := range statuses {
		if p.onlyPublic && st.Visibility != "public" {
			continue
		}
		if src.KeywordsFilterProfile != "" && !p.filters.Allows(src.KeywordsFilterProfile, st.Content) {
			logger.Debugf("mastodon: filtering %s per profile %q", src.ID, src.KeywordsFilterProfile)
			continue
		}

		if !shouldEnqueue(st, src) {
			continue
		}

		out = append(out, post.QueuePost{
			ID:                 string(st.ID),
			Action:             post.ReblogAction(string(st.ID)),
			RawCombinedContent: st.Content,
			PublishedAt:        st.CreatedAt,
		})
	}
	return out, nil
}

func (p *Parser) AlreadySeen(source, id string) bool { return p.seen.AlreadySeen(source, id) }
func (p *Parser) MarkSeen(source string, ids []string) error {
	return p.seen.MarkSeen(source, ids)
}

// PostProcess is the identity transform: Mastodon reblogs need neither
// grouping nor splitting.
func (p *Parser) PostProcess(source string, posts []post.QueuePost) ([]post.QueuePost, error) {
	return posts, nil
}

// ParseMedia is a no-op: a reblog carries no media of its own to fetch.
func (p *Parser) ParseMedia(ctx context.Context, qp *post.QueuePost) error { return nil }

// FormatPost is a no-op: a reblog has no text of its own to format.
func (p *Parser) FormatPost(source string, qp *post.QueuePost) error { return nil }

// shouldEnqueue decides whether a status is an own original status
// (enqueued when src.Toots is set) or a reblog made by the monitored
// account (enqueued when src.Retoots is set); both resolve to a Reblog
// action on the Publisher side, matching mastodon_parser.py's
// "action": "reblog" for both branches.
func shouldEnqueue(st *mastodon.Status, src parser.SourceParams) bool {
	isOwnStatus := st.InReplyToID == nil && st.InReplyToAccountID == nil
	isRetoot := st.Reblog != nil
	return (isOwnStatus && src.Toots) || (isRetoot && src.Retoots)
}

// cachedAccountID extracts the "id" field from a GetHashed lookup,
// tolerant of both map[string]any (freshly written this run) and
// map[interface{}]interface{} (as produced by yaml.v2 after a real round
// trip through disk), matching queue.go's decodeRecords leniency.
func cachedAccountID(raw any) (string, bool) {
	switch m := raw.(type) {
	case map[string]any:
		id, ok := m["id"].(string)
		return id, ok && id != ""
	case map[any]any:
		id, ok := m["id"].(string)
		return id, ok && id != ""
	default:
		return "", false
	}
}
