// Package bridge holds the channel-link model and the Registry that guards it.
//
// A Bridge is an unordered pair of distinct channels. The Registry is the only
// writer: it rejects self-links, rejects a pair that already exists in either
// orientation, and answers "where does a message from this channel go".
package bridge

import (
	"fmt"
	"strconv"
	"time"
)

// ChannelID is a platform channel snowflake.
type ChannelID uint64

// GuildID is a platform server snowflake.
type GuildID uint64

func (id ChannelID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Mention renders the channel as a clickable Discord channel reference.
func (id ChannelID) Mention() string { return "<#" + id.String() + ">" }

func (id GuildID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseChannelID parses a decimal snowflake. Snowflakes are signed 64-bit on
// the wire and in the store, so values above math.MaxInt64 are rejected here.
func ParseChannelID(s string) (ChannelID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid channel id %q: must be positive", s)
	}
	return ChannelID(v), nil
}

// ParseGuildID parses a decimal snowflake.
func ParseGuildID(s string) (GuildID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid guild id %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid guild id %q: must not be negative", s)
	}
	return GuildID(v), nil
}

// Bridge links two channels. Low < High always holds for values produced by
// NewBridge, which makes {a,b} and {b,a} compare equal.
type Bridge struct {
	Low       ChannelID `json:"channel_low"`
	High      ChannelID `json:"channel_high"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// NewBridge canonicalizes the pair. It does not validate a != b.
func NewBridge(a, b ChannelID) Bridge {
	if a > b {
		a, b = b, a
	}
	return Bridge{Low: a, High: b}
}

// Key is the canonical unordered pair.
func (b Bridge) Key() [2]ChannelID { return [2]ChannelID{b.Low, b.High} }

// Has reports whether ch is one of the endpoints.
func (b Bridge) Has(ch ChannelID) bool { return b.Low == ch || b.High == ch }

// Other returns the endpoint opposite ch, or false if ch is not an endpoint.
func (b Bridge) Other(ch ChannelID) (ChannelID, bool) {
	switch ch {
	case b.Low:
		return b.High, true
	case b.High:
		return b.Low, true
	}
	return 0, false
}

func (b Bridge) String() string { return b.Low.String() + "<->" + b.High.String() }

// ChannelInfo is what the platform knows about a live channel.
type ChannelInfo struct {
	ID        ChannelID
	Name      string
	GuildID   GuildID
	GuildName string
}

// Listing is one bridge rendered for a guild. A zero-valued endpoint info with
// Resolved false means the platform could not resolve that channel.
type Listing struct {
	Bridge       Bridge
	Low          ChannelInfo
	LowResolved  bool
	High         ChannelInfo
	HighResolved bool
}
