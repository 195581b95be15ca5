package auth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasteToken(t *testing.T) {
	var out bytes.Buffer
	token, err := PasteToken(&out, strings.NewReader("  Bot abc.def.ghi  \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
	assert.Contains(t, out.String(), "discord.com/developers")
}

func TestPasteToken_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no input", ""},
		{"blank line", "   \n"},
		{"inner whitespace", "abc def\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PasteToken(&bytes.Buffer{}, strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "xyz", NormalizeToken(`"xyz"`))
	assert.Equal(t, "xyz", NormalizeToken("bot xyz"))
	assert.Equal(t, "bot", NormalizeToken("bot"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********6789", Mask("0123456789"))
	assert.Equal(t, "***", Mask("abc"))
}
