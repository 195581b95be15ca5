package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/config"
	"github.com/tinyland-inc/crossbridge/pkg/store"
)

const Logo = "🌉"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	if p := os.Getenv("CROSSBRIDGE_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crossbridge", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// OpenRegistry opens the configured store and wraps it in a Registry without
// a channel resolver. The caller closes the returned store.
func OpenRegistry(cfg *config.Config) (*bridge.Registry, *store.Store, error) {
	st, err := store.Open(cfg.StoragePath())
	if err != nil {
		return nil, nil, fmt.Errorf("error opening bridge store: %w", err)
	}
	return bridge.NewRegistry(st, nil), st, nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
