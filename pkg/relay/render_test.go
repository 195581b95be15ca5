package relay

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/tinyland-inc/crossbridge/pkg/bus"
)

func TestRenderContent(t *testing.T) {
	tests := []struct {
		name string
		msg  bus.InboundMessage
		want string
	}{
		{
			name: "author and guild",
			msg:  bus.InboundMessage{AuthorName: "alice", GuildName: "Alpha", Content: "hello"},
			want: "**alice** from Alpha:\nhello",
		},
		{
			name: "no guild",
			msg:  bus.InboundMessage{AuthorName: "bob", Content: "dm"},
			want: "**bob**:\ndm",
		},
		{
			name: "markdown in display name",
			msg:  bus.InboundMessage{AuthorName: "*star*_", GuildName: "G", Content: "x"},
			want: "**\\*star\\*\\_** from G:\nx",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderContent(tt.msg))
		})
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 2000))
	assert.Equal(t, []string{"anything"}, splitMessage("anything", 0))

	chunks := splitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three"}, chunks)

	chunks = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)

	chunks = splitMessage("héllo wörld ünïcode", 7)
	assert.Equal(t, strings.Join(chunks, ""), "héllo wörld ünïcode")
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 7)
	}
}

func TestRenderSplit_Golden(t *testing.T) {
	msg := bus.InboundMessage{
		AuthorName: "Ada_L",
		GuildName:  "Analytical Engines",
		Content:    "first line of the relayed message\nsecond line that is a little longer than forty\nend",
	}

	var buf bytes.Buffer
	for i, chunk := range splitMessage(renderContent(msg), 40) {
		fmt.Fprintf(&buf, "--- chunk %d (%d runes) ---\n%s\n", i+1, utf8.RuneCountInString(chunk), chunk)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "render_split", buf.Bytes())
}
