// Package auth reads the bot credential interactively.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const developerPortal = "https://discord.com/developers/applications"

// PasteToken prompts on w and reads a bot token from the first line of r.
func PasteToken(w io.Writer, r io.Reader) (string, error) {
	fmt.Fprintf(w, "Paste your bot token from %s (Bot > Reset Token):\n", developerPortal)
	fmt.Fprint(w, "> ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return "", errors.New("no input received")
	}

	token := NormalizeToken(scanner.Text())
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	if strings.ContainsAny(token, " \t") {
		return "", errors.New("token must not contain whitespace")
	}
	return token, nil
}

// NormalizeToken trims whitespace, surrounding quotes and a leading "Bot "
// scheme, which the session adds itself.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	token = strings.Trim(token, `"'`)
	if len(token) > 4 && strings.EqualFold(token[:4], "bot ") {
		token = strings.TrimSpace(token[4:])
	}
	return token
}

// Mask hides all but the last four characters of token for display.
func Mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
