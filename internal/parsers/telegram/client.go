// Package telegram implements the Parser contract for Telegram channels and
// chats via gotd/td. client.go owns the MTProto session: login, persistent
// peer resolution (peerstore.go), history pagination and media download.
// grouping.go is the pure, network-free splitting engine client.go feeds.
//
// Grounded on original_source/echobot/parsers/telegram_parser.py's
// get_raw_content_for_source (reverse=true history iteration keyed by
// offset_id/offset_date) and the base userbot's app/runner.go (client
// bootstrap, auth.Flow login sequence) and
// infra/telegram/peersmgr/manager.go (bbolt peer persistence, adapted in
// peerstore.go).
package telegram

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/seenstate"
	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/mediacache"
)

const historyPageLimit = 100

// ClientOptions configures the Telegram parser's MTProto session.
type ClientOptions struct {
	APIID             int
	APIHash           string
	PhoneNumber       string
	SessionFile       string
	PeersCacheFile    string
	IgnoreOffsets     bool
	DateToStartFrom   time.Time
	MaxStatusLength   int
	MaxMediaPerStatus int
}

// Parser ingests Telegram channels/chats. One Parser instance owns exactly
// one MTProto session; Sources are the configured channels/chats reachable
// through it.
type Parser struct {
	opts    ClientOptions
	sources map[string]parser.SourceParams
	seen    *seenstate.Store
	media   *mediacache.Cache

	client *telegram.Client
	peers  *peerStore
}

// New constructs a Telegram Parser. The MTProto connection and login happen
// lazily, on the first FetchRaw call, via Run.
func New(opts ClientOptions, sources map[string]parser.SourceParams, seen *seenstate.Store, media *mediacache.Cache) *Parser {
	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: &fileSessionStorage{path: opts.SessionFile},
	})
	return &Parser{opts: opts, sources: sources, seen: seen, media: media, client: client}
}

func (p *Parser) Name() string                            { return "telegram" }
func (p *Parser) Sources() map[string]parser.SourceParams { return p.sources }

// Run establishes the MTProto connection, logs in if needed, warms the peer
// store up and invokes fn with a ready-to-use API client. Every orchestrator
// cycle that touches Telegram must go through Run exactly once.
func (p *Parser) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			TerminalAuthenticator{PhoneNumber: p.opts.PhoneNumber, In: os.Stdin, Out: os.Stdout},
			auth.SendCodeOptions{},
		)
		if err := p.client.Auth().IfNecessary(ctx, flow); err != nil {
			return &parser.ErrConfig{Err: fmt.Errorf("telegram auth: %w", err)}
		}

		api := p.client.API()
		peers, err := openPeerStore(api, p.opts.PeersCacheFile)
		if err != nil {
			return &parser.ErrConfig{Err: err}
		}
		defer func() { _ = peers.Close() }()
		p.peers = peers

		if err := peers.warmupIfEmpty(ctx, api); err != nil {
			logger.Warnf("telegram: peer warmup failed: %v", err)
		}

		return fn(ctx)
	})
}

// FetchRaw pulls one source's unseen history, oldest first, matching
// get_raw_content_for_source's reverse=true/offset_id/offset_date
// semantics. Must be called from within Run.
func (p *Parser) FetchRaw(ctx context.Context, source string) ([]post.QueuePost, error) {
	if p.peers == nil {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("telegram: FetchRaw called outside Run")}
	}
	src, ok := p.sources[source]
	if !ok {
		return nil, &parser.ErrConfig{Err: fmt.Errorf("telegram source %q not configured", source)}
	}

	inputPeer, err := p.peers.resolveSource(ctx, src.ID)
	if err != nil {
		return nil, &parser.ErrSourceUnreachable{Source: source, Err: err}
	}

	minID := 0
	if !p.opts.IgnoreOffsets {
		minID = p.seen.MaxSeenID(source)
	}
	var minDate int
	if !p.opts.DateToStartFrom.IsZero() && !p.opts.IgnoreOffsets {
		minDate = int(p.opts.DateToStartFrom.Unix())
	}

	messages, err := p.fetchHistory(ctx, inputPeer, minID, minDate)
	if err != nil {
		return nil, &parser.ErrSourceUnreachable{Source: source, Err: err}
	}

	language := src.LanguageDefault
	if language == "" {
		language = "en"
	}

	out := make([]post.QueuePost, 0, len(messages))
	for _, m := range messages {
		raw := RawMessage{
			ID:       m.ID,
			Text:     m.Message,
			Date:     time.Unix(int64(m.Date), 0).UTC(),
			HasMedia: m.Media != nil,
		}
		if m.Media != nil {
			ref, mime := mediaReference(m.Media)
			raw.MediaRef = ref
			raw.MimeType = mime
		}
		out = append(out, post.QueuePost{
			ID:                 fmt.Sprintf("%d", m.ID),
			RawCombinedContent: m.Message,
			PublishedAt:        raw.Date,
			Language:           language,
			RawContent: map[string]string{
				"_raw_id":        fmt.Sprintf("%d", m.ID),
				"_raw_text":      m.Message,
				"_raw_media_ref": raw.MediaRef,
				"_raw_mime":      raw.MimeType,
				"_raw_has_media": boolString(raw.HasMedia),
			},
		})
	}
	return out, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// fetchHistory pages MessagesGetHistoryRequest newest-first (the only
// order MTProto supports) down to minID/minDate, then reverses the result
// so callers see the chronological order telethon's reverse=true produced.
func (p *Parser) fetchHistory(ctx context.Context, peer tg.InputPeerClass, minID, minDate int) ([]*tg.Message, error) {
	api := p.client.API()

	var collected []*tg.Message
	offsetID := 0
	for {
		resp, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    historyPageLimit,
			MinID:    minID,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesGetHistory: %w", err)
		}

		msgs, err := messagesFromResponse(resp)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}

		stop := false
		for _, m := range msgs {
			if m.ID <= minID {
				stop = true
				continue
			}
			if minDate > 0 && m.Date < minDate {
				stop = true
				continue
			}
			collected = append(collected, m)
		}

		last := msgs[len(msgs)-1]
		offsetID = last.ID
		if stop || len(msgs) < historyPageLimit {
			break
		}
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID < collected[j].ID })
	return collected, nil
}

func messagesFromResponse(resp tg.MessagesMessagesClass) ([]*tg.Message, error) {
	var raw []tg.MessageClass
	switch data := resp.(type) {
	case *tg.MessagesMessages:
		raw = data.Messages
	case *tg.MessagesMessagesSlice:
		raw = data.Messages
	case *tg.MessagesChannelMessages:
		raw = data.Messages
	default:
		return nil, fmt.Errorf("unexpected history response: %T", resp)
	}
	out := make([]*tg.Message, 0, len(raw))
	for _, m := range raw {
		if msg, ok := m.(*tg.Message); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// mediaReference encodes enough of a message's media to retrieve it later
// via downloadMedia, and reports its best-guess MIME type for mediacache's
// extension derivation.
func mediaReference(media tg.MessageMediaClass) (ref, mimeType string) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		if photo, ok := m.Photo.(*tg.Photo); ok {
			return fmt.Sprintf("photo:%d:%d:%s", photo.ID, photo.AccessHash, encodeFileRef(photo.FileReference)), "image/jpeg"
		}
	case *tg.MessageMediaDocument:
		if doc, ok := m.Document.(*tg.Document); ok {
			return fmt.Sprintf("doc:%d:%d:%s", doc.ID, doc.AccessHash, encodeFileRef(doc.FileReference)), doc.MimeType
		}
	}
	return "", ""
}

func encodeFileRef(ref []byte) string {
	// Hex rather than base64 so it round-trips safely through the plain
	// ":"-delimited reference string above.
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(ref)*2)
	for i, b := range ref {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

func decodeFileRef(s string) []byte {
	if len(s)%2 != 0 {
		return nil
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi := hexVal(s[i*2])
		lo := hexVal(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// downloadMedia pulls a photo/document referenced by mediaReference's
// encoding straight from MTProto (upload.getFile), since Telegram's user
// API exposes no plain HTTP URL for media the way RSS/Mastodon do.
func (p *Parser) downloadMedia(ctx context.Context, ref string) ([]byte, error) {
	parts := strings.SplitN(ref, ":", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("telegram: malformed media reference %q", ref)
	}
	kind := parts[0]
	var id, accessHash int64
	if _, err := fmt.Sscan(parts[1], &id); err != nil {
		return nil, err
	}
	if _, err := fmt.Sscan(parts[2], &accessHash); err != nil {
		return nil, err
	}
	fileRef := decodeFileRef(parts[3])

	var location tg.InputFileLocationClass
	switch kind {
	case "photo":
		location = &tg.InputPhotoFileLocation{ID: id, AccessHash: accessHash, FileReference: fileRef, ThumbSize: "x"}
	case "doc":
		location = &tg.InputDocumentFileLocation{ID: id, AccessHash: accessHash, FileReference: fileRef}
	default:
		return nil, fmt.Errorf("telegram: unknown media kind %q", kind)
	}

	api := p.client.API()
	var out []byte
	offset := int64(0)
	const chunk = 512 * 1024
	for {
		resp, err := api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: location,
			Offset:   offset,
			Limit:    chunk,
		})
		if err != nil {
			return nil, fmt.Errorf("UploadGetFile: %w", err)
		}
		file, ok := resp.(*tg.UploadFile)
		if !ok {
			return nil, fmt.Errorf("telegram: unexpected upload.getFile response %T", resp)
		}
		out = append(out, file.Bytes...)
		if len(file.Bytes) < chunk {
			break
		}
		offset += int64(len(file.Bytes))
	}
	return out, nil
}

// AlreadySeen/MarkSeen delegate to the shared seen-state store, namespaced
// by this parser's sources.
func (p *Parser) AlreadySeen(source, id string) bool { return p.seen.AlreadySeen(source, id) }
func (p *Parser) MarkSeen(source string, ids []string) error {
	return p.seen.MarkSeen(source, ids)
}

// PostProcess groups raw per-message posts into the threaded posts the
// Publisher will actually send, via grouping.go.
func (p *Parser) PostProcess(source string, posts []post.QueuePost) ([]post.QueuePost, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	src := p.sources[source]
	language := src.LanguageDefault
	if language == "" {
		language = "en"
	}

	raws := make([]RawMessage, 0, len(posts))
	for _, qp := range posts {
		raws = append(raws, RawMessage{
			ID:       rawIntID(qp),
			Text:     qp.RawContent["_raw_text"],
			Date:     qp.PublishedAt,
			HasMedia: qp.RawContent["_raw_has_media"] != "",
			MediaRef: qp.RawContent["_raw_media_ref"],
			MimeType: qp.RawContent["_raw_mime"],
		})
	}

	opts := GroupingOptions{MaxStatusLength: p.opts.MaxStatusLength, MaxMediaPerPost: p.opts.MaxMediaPerStatus}
	var out []post.QueuePost
	for _, group := range GroupMessages(raws) {
		out = append(out, ProcessGroup(group, language, opts)...)
	}
	return out, nil
}

func rawIntID(qp post.QueuePost) int {
	var id int
	_, _ = fmt.Sscan(qp.RawContent["_raw_id"], &id)
	return id
}

// ParseMedia materializes every media reference attached to the post onto
// local disk via downloadMedia+mediacache, mirroring _download_media's
// best-effort behavior: one failed item never blocks the rest.
func (p *Parser) ParseMedia(ctx context.Context, qp *post.QueuePost) error {
	for i := range qp.Media {
		m := &qp.Media[i]
		if m.Path != "" || m.URL == "" {
			continue
		}
		data, err := p.downloadMedia(ctx, m.URL)
		if err != nil {
			logger.Warnf("telegram: media download failed for %q: %v", m.URL, err)
			continue
		}
		mediaID := strings.SplitN(m.URL, ":", 4)[1]
		path, err := p.media.StoreBytes(fmt.Sprintf("tg-%s", mediaID), data, m.MimeType)
		if err != nil {
			logger.Warnf("telegram: media cache store failed for %q: %v", m.URL, err)
			continue
		}
		m.Path = path
	}
	return nil
}

// FormatPost sets Text from the group's accumulated body (already
// length-split by PostProcess) and applies show_name the way
// format_post_for_source does for Telegram: origin prefixed via
// TEMPLATE_BODY_WITH_ORIGIN when the source is configured to show it.
func (p *Parser) FormatPost(source string, qp *post.QueuePost) error {
	src, ok := p.sources[source]
	if !ok {
		return &parser.ErrConfig{Err: fmt.Errorf("telegram source %q not configured", source)}
	}
	body := qp.RawContent["body"]
	if src.ShowName {
		qp.Text = fmt.Sprintf("%s\t%s", source, body)
	} else {
		qp.Text = body
	}
	return nil
}
