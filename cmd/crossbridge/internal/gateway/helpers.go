package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal"
	"github.com/tinyland-inc/crossbridge/pkg/audit"
	"github.com/tinyland-inc/crossbridge/pkg/bus"
	"github.com/tinyland-inc/crossbridge/pkg/commands"
	"github.com/tinyland-inc/crossbridge/pkg/config"
	"github.com/tinyland-inc/crossbridge/pkg/discord"
	"github.com/tinyland-inc/crossbridge/pkg/health"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
	"github.com/tinyland-inc/crossbridge/pkg/relay"
	"github.com/tinyland-inc/crossbridge/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Discord.Token == "" {
		return errors.New("discord token not configured: run `crossbridge onboard` or set CROSSBRIDGE_DISCORD_TOKEN")
	}

	registry, st, err := internal.OpenRegistry(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	msgBus := bus.NewMessageBus(cfg.Relay.QueueSize)
	adapter, err := discord.New(discord.Config{
		Token:              cfg.Discord.Token,
		GuildID:            cfg.Discord.GuildID,
		RelayWebhooks:      cfg.Discord.RelayWebhooks,
		MaxAttachmentBytes: cfg.Relay.MaxAttachmentBytes,
	}, msgBus, commands.NewHandler(registry))
	if err != nil {
		return fmt.Errorf("error creating discord adapter: %w", err)
	}
	registry.SetResolver(adapter)

	engine := relay.NewEngine(registry, adapter, relayConfig(cfg.Relay))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		fmt.Printf("⚠ Tracing disabled: %v\n", err)
	}

	// The relay keeps its own context so buffered messages can still be
	// delivered after the rest of the gateway starts shutting down.
	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		engine.Run(relayCtx, msgBus)
	}()

	var wg sync.WaitGroup

	if err := adapter.Start(ctx); err != nil {
		msgBus.Close()
		cancelRelay()
		<-relayDone
		return err
	}
	fmt.Println("✓ Discord session opened")

	if cfg.Audit.Enabled {
		auditor, err := audit.New(audit.Config{
			Schedule: cfg.Audit.Schedule,
			Prune:    cfg.Audit.Prune,
		}, registry, adapter)
		if err != nil {
			fmt.Printf("⚠ Bridge audit disabled: %v\n", err)
		} else {
			auditor.SetReadyCheck(adapter.IsReady)
			wg.Add(1)
			go func() {
				defer wg.Done()
				auditor.Run(ctx)
			}()
			fmt.Printf("✓ Bridge audit scheduled (%s)\n", cfg.Audit.Schedule)
		}
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	healthServer.RegisterCheck("discord", func(context.Context) (bool, string) {
		if adapter.IsReady() {
			return true, ""
		}
		return false, "gateway session not ready"
	})
	healthServer.RegisterCheck("store", func(ctx context.Context) (bool, string) {
		if err := st.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})
	healthServer.SetStatsFunc(func() any { return engine.Stats() })
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Health endpoints available at http://%s:%d/health, /ready and /stats\n",
		cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.WarnCF("discord", "Error closing session", map[string]any{"error": err.Error()})
	}
	msgBus.Close()
	if !drainRelay(shutdownCtx, relayDone, cancelRelay) {
		logger.WarnCF("relay", "Relay did not drain before shutdown timeout", map[string]any{
			"pending": msgBus.Pending(),
		})
	}
	cancel()
	wg.Wait()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.WarnCF("health", "Error stopping health server", map[string]any{"error": err.Error()})
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WarnCF("telemetry", "Error flushing spans", map[string]any{"error": err.Error()})
	}

	stats := engine.Stats()
	logger.InfoCF("relay", "Final relay stats", map[string]any{
		"received": stats.Received,
		"relayed":  stats.Relayed,
		"failures": stats.SendFailures,
	})
	fmt.Println("✓ Gateway stopped")
	return nil
}

// drainRelay waits for the relay engine to finish the messages still queued
// on a closed bus. When ctx expires first, in-flight sends are canceled and
// drainRelay reports false once the engine has returned.
func drainRelay(ctx context.Context, done <-chan struct{}, cancelRelay context.CancelFunc) bool {
	select {
	case <-done:
		cancelRelay()
		return true
	case <-ctx.Done():
		cancelRelay()
		<-done
		return false
	}
}

func relayConfig(rc config.RelayConfig) relay.Config {
	return relay.Config{
		Workers:            rc.Workers,
		FanoutLimit:        rc.FanoutLimit,
		SendTimeout:        rc.SendTimeout(),
		MaxMessageLength:   rc.MaxMessageLength,
		MaxAttachmentBytes: rc.MaxAttachmentBytes,
	}
}
