package bus

import "github.com/tinyland-inc/crossbridge/pkg/bridge"

// Attachment is a file on a source message. The bytes are fetched lazily by
// the relay, once per message.
type Attachment struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

type InboundMessage struct {
	RelayID         string           `json:"relay_id"`             // correlation id for logs
	MessageID       string           `json:"message_id,omitempty"` // platform message ID
	Source          bridge.ChannelID `json:"source"`
	GuildName       string           `json:"guild_name"`
	AuthorName      string           `json:"author_name"`
	AuthorAutomated bool             `json:"author_automated"` // bots and webhooks
	Content         string           `json:"content"`
	Attachments     []Attachment     `json:"attachments,omitempty"`
}
