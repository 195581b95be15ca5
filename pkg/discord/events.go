package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/bus"
	"github.com/tinyland-inc/crossbridge/pkg/commands"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.ready.Store(true)

	appID := ""
	if r.Application != nil {
		appID = r.Application.ID
	}
	if appID == "" && r.User != nil {
		appID = r.User.ID
	}

	fields := map[string]any{"guilds": len(r.Guilds)}
	if r.User != nil {
		fields["username"] = r.User.Username
	}
	logger.InfoCF("discord", "Discord session ready", fields)

	if err := a.registerCommands(appID); err != nil {
		logger.ErrorCF("discord", "Failed to register slash commands", map[string]any{
			"error": err.Error(),
		})
	}
}

func (a *Adapter) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	a.ready.Store(false)
	logger.WarnC("discord", "Discord gateway disconnected")
}

func (a *Adapter) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	a.ready.Store(true)
	logger.InfoC("discord", "Discord gateway session resumed")
}

// registerCommands replaces the bot's command set with commands.Definitions.
func (a *Adapter) registerCommands(appID string) error {
	cmds := buildApplicationCommands(commands.Definitions())
	created, err := a.api.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, cmds)
	if err != nil {
		return err
	}
	logger.InfoCF("discord", "Slash commands synced", map[string]any{
		"count":    len(created),
		"guild_id": a.cfg.GuildID,
	})
	return nil
}

func buildApplicationCommands(defs []commands.Definition) []*discordgo.ApplicationCommand {
	dmAllowed := false
	out := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, d := range defs {
		cmd := &discordgo.ApplicationCommand{
			Name:         d.Name,
			Description:  d.Description,
			Type:         discordgo.ChatApplicationCommand,
			DMPermission: &dmAllowed,
		}
		if d.ChannelOption != "" {
			cmd.Options = []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        d.ChannelOption,
				Description: d.ChannelOptionDescription,
				Required:    true,
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildText,
					discordgo.ChannelTypeGuildNews,
				},
			}}
		}
		out = append(out, cmd)
	}
	return out
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	a.handleMessage(a.runContext(), m.Message)
}

// handleMessage converts a gateway message into a bus message and publishes it.
func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.Message) {
	// Guild channels only; system messages (joins, pins, boosts) are never relayed.
	if m.GuildID == "" || m.Author == nil {
		return
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return
	}

	source, err := bridge.ParseChannelID(m.ChannelID)
	if err != nil {
		logger.WarnCF("discord", "Ignoring message with invalid channel id", map[string]any{
			"channel_id": m.ChannelID,
		})
		return
	}

	msg := bus.InboundMessage{
		RelayID:         uuid.NewString(),
		MessageID:       m.ID,
		Source:          source,
		GuildName:       a.guildName(ctx, m.GuildID),
		AuthorName:      displayName(m),
		AuthorAutomated: a.isAutomated(m),
		Content:         m.Content,
		Attachments:     attachments(m.Attachments),
	}

	if err := a.bus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF("discord", "Inbound message dropped", map[string]any{
			"message_id": m.ID,
			"channel_id": m.ChannelID,
			"error":      err.Error(),
		})
	}
}

// isAutomated marks bot accounts, and webhooks unless configured otherwise.
// The bot's own relay output is authored by a bot account, so it is never
// relayed again.
func (a *Adapter) isAutomated(m *discordgo.Message) bool {
	if m.Author.Bot || m.Author.System {
		return true
	}
	return m.WebhookID != "" && !a.cfg.RelayWebhooks
}

// displayName prefers the guild nickname, then the global display name, then
// the username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func attachments(in []*discordgo.MessageAttachment) []bus.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]bus.Attachment, 0, len(in))
	for _, att := range in {
		if att == nil || att.URL == "" {
			continue
		}
		out = append(out, bus.Attachment{
			Filename:    att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return out
}

func (a *Adapter) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}
	a.handleInteraction(a.runContext(), i.Interaction)
}

// handleInteraction routes a slash command to the command handler and posts
// the reply.
func (a *Adapter) handleInteraction(ctx context.Context, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	resp := a.dispatchCommand(ctx, i, data)
	err := a.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(resp),
	}, discordgo.WithContext(ctx))
	if err != nil {
		logger.ErrorCF("discord", "Failed to respond to command", map[string]any{
			"command": data.Name,
			"error":   err.Error(),
		})
	}
}

func (a *Adapter) dispatchCommand(
	ctx context.Context,
	i *discordgo.Interaction,
	data discordgo.ApplicationCommandInteractionData,
) commands.Response {
	if i.GuildID == "" {
		return commands.Response{Content: "This command can only be used in a server.", Ephemeral: true}
	}
	source, err := bridge.ParseChannelID(i.ChannelID)
	if err != nil {
		return commands.Response{Content: "Could not determine this channel.", Ephemeral: true}
	}

	logger.InfoCF("discord", "Command received", map[string]any{
		"command":    data.Name,
		"channel_id": i.ChannelID,
		"guild_id":   i.GuildID,
	})

	switch data.Name {
	case commands.NameLink, commands.NameUnlink:
		target, ok := channelOption(data.Options, "channel")
		if !ok {
			return commands.Response{Content: "Please pick a channel.", Ephemeral: true}
		}
		if data.Name == commands.NameLink {
			return a.commands.Link(ctx, source, target)
		}
		return a.commands.Unlink(ctx, source, target)
	case commands.NameList:
		guild, err := bridge.ParseGuildID(i.GuildID)
		if err != nil {
			return commands.Response{Content: "Could not determine this server.", Ephemeral: true}
		}
		return a.commands.List(ctx, guild)
	default:
		return commands.Response{Content: "Unknown command: " + data.Name, Ephemeral: true}
	}
}

func channelOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (bridge.ChannelID, bool) {
	for _, opt := range opts {
		if opt == nil || !strings.EqualFold(opt.Name, name) {
			continue
		}
		raw, ok := opt.Value.(string)
		if !ok {
			return 0, false
		}
		id, err := bridge.ParseChannelID(raw)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func responseData(resp commands.Response) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content: resp.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}
