package onboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal"
	"github.com/tinyland-inc/crossbridge/pkg/auth"
	"github.com/tinyland-inc/crossbridge/pkg/config"
)

func onboard(in io.Reader, out io.Writer, token string, force bool) error {
	configPath := internal.GetConfigPath()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("error loading existing config: %w", err)
		}
		cfg = loaded
	}

	switch {
	case token != "":
		cfg.Discord.Token = auth.NormalizeToken(token)
	case cfg.Discord.Token == "" || force:
		pasted, err := auth.PasteToken(out, in)
		if err != nil {
			return err
		}
		cfg.Discord.Token = pasted
	default:
		fmt.Fprintf(out, "Keeping existing token %s (use --force to replace it)\n", auth.Mask(cfg.Discord.Token))
	}

	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StoragePath()), 0o755); err != nil {
		return fmt.Errorf("error creating storage directory: %w", err)
	}

	fmt.Fprintf(out, "\n%s crossbridge is ready!\n", internal.Logo)
	fmt.Fprintf(out, "  Config:  %s\n", configPath)
	fmt.Fprintf(out, "  Storage: %s\n", cfg.StoragePath())
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Enable the Message Content intent for the bot in the developer portal")
	fmt.Fprintln(out, "  2. Invite the bot with the bot and applications.commands scopes")
	fmt.Fprintln(out, "  3. Run: crossbridge gateway")
	return nil
}
