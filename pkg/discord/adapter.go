// Package discord is the platform adapter: it owns the discordgo gateway
// session, turns message events into bus messages, routes slash commands to
// the command handler and provides the send/resolve/fetch primitives the
// relay engine calls.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/bus"
	"github.com/tinyland-inc/crossbridge/pkg/commands"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
	"github.com/tinyland-inc/crossbridge/pkg/relay"
)

// restAPI is the slice of *discordgo.Session the adapter calls.
type restAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		cmds []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
}

// stateCache is the gateway-fed cache; *discordgo.State implements it.
type stateCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
	Guild(guildID string) (*discordgo.Guild, error)
}

type Config struct {
	Token string
	// GuildID registers commands to a single guild; empty registers globally.
	GuildID string
	// RelayWebhooks relays messages posted by webhooks instead of treating
	// them as automated.
	RelayWebhooks      bool
	MaxAttachmentBytes int
}

type Adapter struct {
	cfg      Config
	session  *discordgo.Session
	api      restAPI
	state    stateCache
	http     *http.Client
	bus      *bus.MessageBus
	commands *commands.Handler

	ready atomic.Bool

	mu       sync.RWMutex
	ctx      context.Context
	handlers []func()
}

var _ relay.Platform = (*Adapter)(nil)

// New creates an adapter with a discordgo session. The session is not
// connected until Start.
func New(cfg Config, msgBus *bus.MessageBus, handler *commands.Handler) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token not configured")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	a := newAdapter(cfg, session, session.State, session.Client, msgBus, handler)
	a.session = session
	return a, nil
}

func newAdapter(
	cfg Config,
	api restAPI,
	state stateCache,
	client *http.Client,
	msgBus *bus.MessageBus,
	handler *commands.Handler,
) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		cfg:      cfg,
		api:      api,
		state:    state,
		http:     client,
		bus:      msgBus,
		commands: handler,
		ctx:      context.Background(),
	}
}

func (a *Adapter) Name() string { return "discord" }

// IsReady reports whether the gateway session is connected and identified.
func (a *Adapter) IsReady() bool { return a.ready.Load() }

// Start registers event handlers and opens the gateway connection. ctx is
// used for publishing inbound messages and command handling until Stop.
func (a *Adapter) Start(ctx context.Context) error {
	if a.session == nil {
		return fmt.Errorf("discord session not initialized")
	}

	a.mu.Lock()
	a.ctx = ctx
	a.handlers = append(a.handlers,
		a.session.AddHandler(a.onReady),
		a.session.AddHandler(a.onDisconnect),
		a.session.AddHandler(a.onResumed),
		a.session.AddHandler(a.onMessageCreate),
		a.session.AddHandler(a.onInteractionCreate),
	)
	a.mu.Unlock()

	logger.InfoC("discord", "Starting Discord gateway session")
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Stop removes handlers and closes the gateway connection.
func (a *Adapter) Stop(_ context.Context) error {
	a.ready.Store(false)
	if a.session == nil {
		return nil
	}

	a.mu.Lock()
	for _, remove := range a.handlers {
		remove()
	}
	a.handlers = nil
	a.mu.Unlock()

	logger.InfoC("discord", "Stopping Discord gateway session")
	return a.session.Close()
}

func (a *Adapter) runContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// ResolveChannel looks the channel up in the gateway cache, falling back to
// the REST API.
func (a *Adapter) ResolveChannel(ctx context.Context, id bridge.ChannelID) (bridge.ChannelInfo, bool) {
	info, err := a.CheckChannel(ctx, id)
	return info, err == nil
}

// CheckChannel is ResolveChannel with the failure kept. A channel Discord
// reports as unknown or inaccessible yields *bridge.ChannelUnresolvableError;
// rate limits, server errors and network failures come back as other errors.
func (a *Adapter) CheckChannel(ctx context.Context, id bridge.ChannelID) (bridge.ChannelInfo, error) {
	ch, err := a.lookupChannel(ctx, id.String())
	if err != nil {
		if isDefinitiveMiss(err) {
			return bridge.ChannelInfo{}, &bridge.ChannelUnresolvableError{Channel: id}
		}
		return bridge.ChannelInfo{}, fmt.Errorf("lookup channel %s: %w", id, err)
	}

	info := bridge.ChannelInfo{ID: id, Name: ch.Name}
	if ch.GuildID != "" {
		if gid, err := bridge.ParseGuildID(ch.GuildID); err == nil {
			info.GuildID = gid
		}
		info.GuildName = a.guildName(ctx, ch.GuildID)
	}
	return info, nil
}

func (a *Adapter) lookupChannel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if a.state != nil {
		if ch, err := a.state.Channel(id); err == nil {
			return ch, nil
		}
	}
	ch, err := a.api.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		logger.DebugCF("discord", "Channel lookup failed", map[string]any{
			"channel_id": id,
			"error":      err.Error(),
		})
		return nil, err
	}
	return ch, nil
}

// isDefinitiveMiss reports whether err says the channel is gone or hidden from
// the bot, as opposed to a failure worth retrying later.
func isDefinitiveMiss(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
			return true
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return true
		}
	}
	return false
}

func (a *Adapter) guildName(ctx context.Context, guildID string) string {
	if guildID == "" {
		return ""
	}
	if a.state != nil {
		if g, err := a.state.Guild(guildID); err == nil && g.Name != "" {
			return g.Name
		}
	}
	g, err := a.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return ""
	}
	return g.Name
}

// FetchAttachment downloads an attachment from the Discord CDN.
func (a *Adapter) FetchAttachment(ctx context.Context, att bus.Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if a.cfg.MaxAttachmentBytes > 0 {
		// One extra byte lets the caller see the limit was exceeded.
		body = io.LimitReader(resp.Body, int64(a.cfg.MaxAttachmentBytes)+1)
	}
	return io.ReadAll(body)
}

// Send posts out to target with mention parsing disabled.
func (a *Adapter) Send(ctx context.Context, target bridge.ChannelID, out relay.Outbound) error {
	files := make([]*discordgo.File, 0, len(out.Files))
	for _, f := range out.Files {
		files = append(files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	_, err := a.api.ChannelMessageSendComplex(target.String(), &discordgo.MessageSend{
		Content: out.Content,
		Files:   files,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}, discordgo.WithContext(ctx))
	return err
}
