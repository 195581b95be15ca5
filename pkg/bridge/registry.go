package bridge

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

// Store persists bridge records. InsertBridge must enforce uniqueness of the
// canonical pair itself and report a collision as ErrDuplicateBridge, so the
// existence check and the insert are one atomic step.
type Store interface {
	InsertBridge(ctx context.Context, b Bridge) error
	DeleteBridge(ctx context.Context, b Bridge) (bool, error)
	ListTargets(ctx context.Context, ch ChannelID) ([]ChannelID, error)
	ListBridges(ctx context.Context) ([]Bridge, error)
}

// ChannelResolver turns a raw channel id into live channel details.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, id ChannelID) (ChannelInfo, bool)
}

// Registry enforces the bridge invariants on top of a Store. It holds no
// bridge state of its own.
type Registry struct {
	store    Store
	resolver ChannelResolver
	now      func() time.Time
}

// NewRegistry creates a Registry. resolver may be nil for offline use, in which
// case guild listings are always empty.
func NewRegistry(store Store, resolver ChannelResolver) *Registry {
	return &Registry{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

// SetResolver attaches the platform resolver once the session is up.
func (r *Registry) SetResolver(resolver ChannelResolver) { r.resolver = resolver }

// CreateBridge links a and b.
func (r *Registry) CreateBridge(ctx context.Context, a, b ChannelID) (Bridge, error) {
	if a == b {
		return Bridge{}, ErrSelfLink
	}

	br := NewBridge(a, b)
	br.CreatedAt = r.now().UTC()

	if err := r.store.InsertBridge(ctx, br); err != nil {
		if errors.Is(err, ErrDuplicateBridge) {
			return Bridge{}, ErrDuplicateBridge
		}
		return Bridge{}, &PersistenceError{Op: "insert", Err: err}
	}

	logger.InfoCF("bridge", "Bridge created", map[string]any{
		"channel_a": a.String(),
		"channel_b": b.String(),
	})
	return br, nil
}

// RemoveBridge unlinks the pair in whichever orientation it was stored.
// Removing a pair that does not exist is not an error; the bool reports
// whether a record was actually deleted.
func (r *Registry) RemoveBridge(ctx context.Context, a, b ChannelID) (bool, error) {
	if a == b {
		return false, nil
	}
	removed, err := r.store.DeleteBridge(ctx, NewBridge(a, b))
	if err != nil {
		return false, &PersistenceError{Op: "delete", Err: err}
	}
	if removed {
		logger.InfoCF("bridge", "Bridge removed", map[string]any{
			"channel_a": a.String(),
			"channel_b": b.String(),
		})
	}
	return removed, nil
}

// LookupTargets returns every channel bridged directly to ch, sorted and
// without duplicates. Bridges are never chained: only direct partners of ch
// are returned.
func (r *Registry) LookupTargets(ctx context.Context, ch ChannelID) ([]ChannelID, error) {
	raw, err := r.store.ListTargets(ctx, ch)
	if err != nil {
		return nil, &PersistenceError{Op: "lookup", Err: err}
	}

	targets := make([]ChannelID, 0, len(raw))
	for _, t := range raw {
		if t == ch {
			continue
		}
		targets = append(targets, t)
	}
	slices.Sort(targets)
	return slices.Compact(targets), nil
}

// ListBridges returns every stored bridge.
func (r *Registry) ListBridges(ctx context.Context) ([]Bridge, error) {
	all, err := r.store.ListBridges(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return all, nil
}

// ListBridgesForGuild returns the bridges with at least one endpoint in guild.
// Endpoints the resolver cannot see are returned with Resolved=false so the
// caller can render the raw id.
func (r *Registry) ListBridgesForGuild(ctx context.Context, guild GuildID) ([]Listing, error) {
	all, err := r.ListBridges(ctx)
	if err != nil {
		return nil, err
	}
	if r.resolver == nil {
		return nil, nil
	}

	var out []Listing
	for _, b := range all {
		l := Listing{Bridge: b}
		l.Low, l.LowResolved = r.resolver.ResolveChannel(ctx, b.Low)
		l.High, l.HighResolved = r.resolver.ResolveChannel(ctx, b.High)
		if !l.LowResolved {
			l.Low = ChannelInfo{ID: b.Low}
		}
		if !l.HighResolved {
			l.High = ChannelInfo{ID: b.High}
		}

		inGuild := (l.LowResolved && l.Low.GuildID == guild) ||
			(l.HighResolved && l.High.GuildID == guild)
		if inGuild {
			out = append(out, l)
		}
	}
	return out, nil
}
