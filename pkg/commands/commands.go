// Package commands turns user commands into Registry calls and renders the
// replies. It knows nothing about how commands arrive; the platform adapter
// parses the invocation and posts the Response.
package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

// Command names as registered on the platform.
const (
	NameLink   = "proxy"
	NameUnlink = "unproxy"
	NameList   = "listproxies"
)

// Definition describes a command for registration.
type Definition struct {
	Name        string
	Description string
	// ChannelOption names the single channel argument; empty for none.
	ChannelOption            string
	ChannelOptionDescription string
}

// Definitions lists every command the bot exposes.
func Definitions() []Definition {
	return []Definition{
		{
			Name:                     NameLink,
			Description:              "Bridge two channels across servers",
			ChannelOption:            "channel",
			ChannelOptionDescription: "The channel you want to link this one to",
		},
		{
			Name:                     NameUnlink,
			Description:              "Remove a bridge between this and another channel",
			ChannelOption:            "channel",
			ChannelOptionDescription: "The channel to disconnect from",
		},
		{
			Name:        NameList,
			Description: "List active bridges involving this server",
		},
	}
}

// Response is what the invoking user sees.
type Response struct {
	Content   string
	Ephemeral bool
}

// Registry is the subset of bridge.Registry the commands call.
type Registry interface {
	CreateBridge(ctx context.Context, a, b bridge.ChannelID) (bridge.Bridge, error)
	RemoveBridge(ctx context.Context, a, b bridge.ChannelID) (bool, error)
	ListBridgesForGuild(ctx context.Context, guild bridge.GuildID) ([]bridge.Listing, error)
}

type Handler struct {
	registry Registry
}

func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

const failureText = "⚠️ Something went wrong while updating bridges. Please try again later."

// Link bridges the invoking channel with target.
func (h *Handler) Link(ctx context.Context, source, target bridge.ChannelID) Response {
	_, err := h.registry.CreateBridge(ctx, source, target)
	switch {
	case err == nil:
		return Response{Content: "🔗 Bridged this channel with " + target.Mention()}
	case errors.Is(err, bridge.ErrSelfLink):
		return Response{Content: "You can't proxy a channel to itself.", Ephemeral: true}
	case errors.Is(err, bridge.ErrDuplicateBridge):
		return Response{Content: "These channels are already bridged.", Ephemeral: true}
	default:
		logger.ErrorCF("commands", "Link failed", map[string]any{
			"source": source.String(),
			"target": target.String(),
			"error":  err.Error(),
		})
		return Response{Content: failureText, Ephemeral: true}
	}
}

// Unlink removes the bridge between the invoking channel and target. It
// confirms even when no bridge existed.
func (h *Handler) Unlink(ctx context.Context, source, target bridge.ChannelID) Response {
	if _, err := h.registry.RemoveBridge(ctx, source, target); err != nil {
		logger.ErrorCF("commands", "Unlink failed", map[string]any{
			"source": source.String(),
			"target": target.String(),
			"error":  err.Error(),
		})
		return Response{Content: failureText, Ephemeral: true}
	}
	return Response{Content: "⛔ Unbridged this channel and " + target.Mention()}
}

// List renders every bridge touching guild.
func (h *Handler) List(ctx context.Context, guild bridge.GuildID) Response {
	listings, err := h.registry.ListBridgesForGuild(ctx, guild)
	if err != nil {
		logger.ErrorCF("commands", "List failed", map[string]any{
			"guild": guild.String(),
			"error": err.Error(),
		})
		return Response{Content: failureText, Ephemeral: true}
	}
	if len(listings) == 0 {
		return Response{Content: "📭 No bridges involving this server."}
	}

	var b strings.Builder
	b.WriteString("**🔗 Active Bridges:**")
	for _, l := range listings {
		b.WriteString("\n")
		b.WriteString(renderEndpoint(l.Low, l.LowResolved))
		b.WriteString(" ↔️ ")
		b.WriteString(renderEndpoint(l.High, l.HighResolved))
	}
	return Response{Content: b.String()}
}

func renderEndpoint(info bridge.ChannelInfo, resolved bool) string {
	if !resolved {
		return "`" + info.ID.String() + "`"
	}
	return info.ID.Mention()
}
