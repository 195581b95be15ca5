// Package audit periodically checks that both endpoints of every bridge still
// resolve, and optionally removes the bridges that do not.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

type Registry interface {
	ListBridges(ctx context.Context) ([]bridge.Bridge, error)
	RemoveBridge(ctx context.Context, a, b bridge.ChannelID) (bool, error)
}

// ChannelChecker resolves a channel and says why it failed. Only a
// *bridge.ChannelUnresolvableError marks a bridge stale; any other error is
// treated as transient.
type ChannelChecker interface {
	CheckChannel(ctx context.Context, id bridge.ChannelID) (bridge.ChannelInfo, error)
}

type Config struct {
	Schedule string // cron expression
	Prune    bool
}

// Report summarizes one audit pass.
type Report struct {
	Checked int
	Stale   []bridge.Bridge
	// Unverified bridges had an endpoint lookup fail transiently. They are
	// never pruned.
	Unverified []bridge.Bridge
	Pruned     int
	// PruneSkipped is set when nothing resolved at all, which points at the
	// platform rather than at the bridges.
	PruneSkipped bool
}

type Auditor struct {
	cfg      Config
	registry Registry
	checker  ChannelChecker
	ready    func() bool
	isDue    func(expr string, ref ...time.Time) (bool, error)
	interval time.Duration
}

func New(cfg Config, registry Registry, checker ChannelChecker) (*Auditor, error) {
	g := gronx.New()
	if !g.IsValid(cfg.Schedule) {
		return nil, fmt.Errorf("invalid audit schedule %q", cfg.Schedule)
	}
	return &Auditor{
		cfg:      cfg,
		registry: registry,
		checker:  checker,
		ready:    func() bool { return true },
		isDue:    g.IsDue,
		interval: time.Minute,
	}, nil
}

// SetReadyCheck gates scheduled passes; a pass is skipped while ready reports
// false.
func (a *Auditor) SetReadyCheck(ready func() bool) {
	if ready != nil {
		a.ready = ready
	}
}

// Run checks the schedule once per minute until ctx is done.
func (a *Auditor) Run(ctx context.Context) {
	logger.InfoCF("audit", "Bridge audit scheduled", map[string]any{
		"schedule": a.cfg.Schedule,
		"prune":    a.cfg.Prune,
	})

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.tick(ctx, now)
		}
	}
}

func (a *Auditor) tick(ctx context.Context, now time.Time) {
	due, err := a.isDue(a.cfg.Schedule, now.Truncate(time.Minute))
	if err != nil {
		logger.ErrorCF("audit", "Schedule check failed", map[string]any{"error": err.Error()})
		return
	}
	if !due {
		return
	}
	if !a.ready() {
		logger.DebugC("audit", "Platform not ready, skipping audit")
		return
	}
	if _, err := a.RunOnce(ctx); err != nil {
		logger.ErrorCF("audit", "Bridge audit failed", map[string]any{"error": err.Error()})
	}
}

// RunOnce audits every bridge now.
func (a *Auditor) RunOnce(ctx context.Context) (Report, error) {
	bridges, err := a.registry.ListBridges(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Checked: len(bridges)}
	resolvedAny := false
	for _, b := range bridges {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		low := a.check(ctx, b.Low)
		high := a.check(ctx, b.High)
		if low == resolved || high == resolved {
			resolvedAny = true
		}
		switch {
		case low == resolved && high == resolved:
			continue
		case low == transient || high == transient:
			report.Unverified = append(report.Unverified, b)
			logger.WarnCF("audit", "Bridge endpoint lookup failed, will retry next pass", map[string]any{
				"bridge": b.String(),
			})
			continue
		}
		report.Stale = append(report.Stale, b)
		logger.WarnCF("audit", "Bridge endpoint unresolvable", map[string]any{
			"bridge":        b.String(),
			"low_resolved":  low == resolved,
			"high_resolved": high == resolved,
		})
	}

	if a.cfg.Prune && len(report.Stale) > 0 {
		if !resolvedAny {
			report.PruneSkipped = true
			logger.WarnCF("audit", "No bridge endpoint resolved, not pruning", map[string]any{
				"stale": len(report.Stale),
			})
		} else {
			for _, b := range report.Stale {
				removed, err := a.registry.RemoveBridge(ctx, b.Low, b.High)
				if err != nil {
					return report, err
				}
				if removed {
					report.Pruned++
				}
			}
		}
	}

	logger.InfoCF("audit", "Bridge audit complete", map[string]any{
		"checked":    report.Checked,
		"stale":      len(report.Stale),
		"unverified": len(report.Unverified),
		"pruned":     report.Pruned,
	})
	return report, nil
}

type endpointState int

const (
	resolved endpointState = iota
	missing
	transient
)

func (a *Auditor) check(ctx context.Context, id bridge.ChannelID) endpointState {
	_, err := a.checker.CheckChannel(ctx, id)
	if err == nil {
		return resolved
	}
	var unresolvable *bridge.ChannelUnresolvableError
	if errors.As(err, &unresolvable) {
		return missing
	}
	logger.DebugCF("audit", "Channel check failed", map[string]any{
		"channel": id.String(),
		"error":   err.Error(),
	})
	return transient
}
