// Package relay fans inbound messages out to every bridged channel.
//
// Each message is handled as one bounded operation: look up targets, fetch
// attachments once, then send to every target concurrently up to a fixed
// limit. A failure on one target never affects its siblings. Run shards the
// inbound queue by source channel so messages from one channel are relayed
// in order.
package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/bus"
	"github.com/tinyland-inc/crossbridge/pkg/logger"
)

var tracer = otel.Tracer("github.com/tinyland-inc/crossbridge/pkg/relay")

// File is an attachment ready to be re-uploaded. Data is shared read-only
// across all targets of one message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Outbound is one message to send to one target channel.
type Outbound struct {
	Content string
	Files   []File
}

// Platform is the chat-platform capability the engine needs.
type Platform interface {
	bridge.ChannelResolver
	FetchAttachment(ctx context.Context, a bus.Attachment) ([]byte, error)
	Send(ctx context.Context, target bridge.ChannelID, msg Outbound) error
}

// TargetLookup resolves the channels bridged to a source.
type TargetLookup interface {
	LookupTargets(ctx context.Context, ch bridge.ChannelID) ([]bridge.ChannelID, error)
}

type Config struct {
	Workers            int
	FanoutLimit        int
	SendTimeout        time.Duration
	MaxMessageLength   int
	MaxAttachmentBytes int
}

func DefaultConfig() Config {
	return Config{
		Workers:            8,
		FanoutLimit:        4,
		SendTimeout:        15 * time.Second,
		MaxMessageLength:   2000,
		MaxAttachmentBytes: 25 << 20,
	}
}

// Result describes what happened to one inbound message.
type Result struct {
	Ignored   bool
	Targets   []bridge.ChannelID
	Delivered []bridge.ChannelID
	Skipped   []bridge.ChannelID
	// Failures holds per-target and per-attachment errors: *SendError,
	// *bridge.ChannelUnresolvableError and *AttachmentFetchError.
	Failures []error
}

type Engine struct {
	lookup   TargetLookup
	platform Platform
	cfg      Config
	stats    Stats
}

// NewEngine creates an Engine. Zero or negative values in cfg fall back to
// DefaultConfig, except MaxMessageLength and MaxAttachmentBytes where a
// negative value disables the limit.
func NewEngine(lookup TargetLookup, platform Platform, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = def.FanoutLimit
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = def.MaxMessageLength
	}
	if cfg.MaxAttachmentBytes == 0 {
		cfg.MaxAttachmentBytes = def.MaxAttachmentBytes
	}
	return &Engine{
		lookup:   lookup,
		platform: platform,
		cfg:      cfg,
	}
}

// Stats returns a snapshot of the relay counters.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot() }

// Handle relays msg to every channel bridged to its source. The only error
// returned is a failed target lookup, in which case nothing was sent; all
// other failures are isolated per target and reported in the Result.
func (e *Engine) Handle(ctx context.Context, msg bus.InboundMessage) (Result, error) {
	e.stats.received.Add(1)

	ctx, span := tracer.Start(ctx, "relay.Handle", trace.WithAttributes(
		attribute.String("relay.id", msg.RelayID),
		attribute.String("relay.source", msg.Source.String()),
		attribute.Int("relay.attachments", len(msg.Attachments)),
	))
	defer span.End()

	if msg.AuthorAutomated {
		e.stats.ignoredAutomated.Add(1)
		span.SetAttributes(attribute.Bool("relay.ignored", true))
		return Result{Ignored: true}, nil
	}

	targets, err := e.lookup.LookupTargets(ctx, msg.Source)
	if err != nil {
		e.stats.lookupFailures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "target lookup failed")
		logger.ErrorCF("relay", "Target lookup failed, message dropped", map[string]any{
			"relay_id": msg.RelayID,
			"source":   msg.Source.String(),
			"error":    err.Error(),
		})
		return Result{}, fmt.Errorf("lookup targets of %s: %w", msg.Source, err)
	}
	if len(targets) == 0 {
		return Result{}, nil
	}

	res := Result{Targets: targets}
	files, fetchErrs := e.fetchAttachments(ctx, msg)
	res.Failures = append(res.Failures, fetchErrs...)

	chunks := splitMessage(renderContent(msg), e.cfg.MaxMessageLength)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.FanoutLimit)
	for _, target := range targets {
		g.Go(func() error {
			delivered, err := e.deliver(ctx, msg, target, chunks, files)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case delivered:
				res.Delivered = append(res.Delivered, target)
			case err != nil:
				var unresolved *bridge.ChannelUnresolvableError
				if errors.As(err, &unresolved) {
					res.Skipped = append(res.Skipped, target)
				}
				res.Failures = append(res.Failures, err)
			}
			// Failures live in res; the group itself never sees an error.
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("relay.targets", len(res.Targets)),
		attribute.Int("relay.delivered", len(res.Delivered)),
		attribute.Int("relay.failures", len(res.Failures)),
	)

	logger.DebugCF("relay", "Message relayed", map[string]any{
		"relay_id":  msg.RelayID,
		"source":    msg.Source.String(),
		"targets":   len(res.Targets),
		"delivered": len(res.Delivered),
		"skipped":   len(res.Skipped),
		"failures":  len(res.Failures),
	})
	return res, nil
}

// deliver sends every chunk to one target; files ride on the final chunk.
func (e *Engine) deliver(
	ctx context.Context,
	msg bus.InboundMessage,
	target bridge.ChannelID,
	chunks []string,
	files []File,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "relay.deliver", trace.WithAttributes(
		attribute.String("relay.id", msg.RelayID),
		attribute.String("relay.target", target.String()),
		attribute.Int("relay.chunks", len(chunks)),
	))
	defer span.End()

	if _, ok := e.platform.ResolveChannel(ctx, target); !ok {
		e.stats.skippedUnresolvable.Add(1)
		span.SetStatus(codes.Error, "target unresolvable")
		logger.WarnCF("relay", "Target channel unresolvable, skipping", map[string]any{
			"relay_id": msg.RelayID,
			"source":   msg.Source.String(),
			"target":   target.String(),
		})
		return false, &bridge.ChannelUnresolvableError{Channel: target}
	}

	for i, chunk := range chunks {
		out := Outbound{Content: chunk}
		if i == len(chunks)-1 {
			out.Files = files
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		err := e.platform.Send(sendCtx, target, out)
		cancel()
		if err != nil {
			e.stats.sendFailures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "send failed")
			logger.WarnCF("relay", "Send failed", map[string]any{
				"relay_id": msg.RelayID,
				"source":   msg.Source.String(),
				"target":   target.String(),
				"chunk":    i,
				"error":    err.Error(),
			})
			return false, &SendError{Target: target, Err: err}
		}
	}

	e.stats.relayed.Add(1)
	return true, nil
}

// fetchAttachments downloads each attachment once. Failures degrade to an
// omitted attachment.
func (e *Engine) fetchAttachments(ctx context.Context, msg bus.InboundMessage) ([]File, []error) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}

	var (
		files []File
		errs  []error
	)
	limit := e.cfg.MaxAttachmentBytes
	for _, a := range msg.Attachments {
		if limit > 0 && a.Size > limit {
			errs = append(errs, e.attachmentFailed(msg, a, errAttachmentTooLarge))
			continue
		}
		data, err := e.platform.FetchAttachment(ctx, a)
		if err == nil && limit > 0 && len(data) > limit {
			err = errAttachmentTooLarge
		}
		if err != nil {
			errs = append(errs, e.attachmentFailed(msg, a, err))
			continue
		}
		files = append(files, File{
			Name:        a.Filename,
			ContentType: a.ContentType,
			Data:        data,
		})
	}
	return files, errs
}

func (e *Engine) attachmentFailed(msg bus.InboundMessage, a bus.Attachment, err error) error {
	e.stats.attachmentFailures.Add(1)
	logger.WarnCF("relay", "Attachment omitted", map[string]any{
		"relay_id": msg.RelayID,
		"source":   msg.Source.String(),
		"filename": a.Filename,
		"error":    err.Error(),
	})
	return &AttachmentFetchError{Filename: a.Filename, Err: err}
}

// Run consumes mb until ctx is canceled or the bus is closed and drained.
// cfg.Workers goroutines pull from the bus directly. The first worker to take
// a message from a source owns that source until its backlog is empty, so
// relay of message N from a channel finishes before N+1 from the same channel
// starts, and a slow source never holds back the others.
func (e *Engine) Run(ctx context.Context, mb *bus.MessageBus) {
	logger.InfoCF("relay", "Relay engine started", map[string]any{
		"workers":      e.cfg.Workers,
		"fanout_limit": e.cfg.FanoutLimit,
	})

	sources := newSourceQueues()
	var wg sync.WaitGroup
	for range e.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, ok := mb.ConsumeInbound(ctx)
				if !ok {
					return
				}
				if !sources.claim(msg) {
					continue
				}
				for ok {
					e.handleSafely(ctx, msg)
					msg, ok = sources.next(msg.Source)
				}
			}
		}()
	}
	wg.Wait()
	logger.InfoC("relay", "Relay engine stopped")
}

// sourceQueues tracks which sources a worker currently owns, with the
// messages that arrived for them in the meantime.
type sourceQueues struct {
	mu      sync.Mutex
	pending map[bridge.ChannelID][]bus.InboundMessage
}

func newSourceQueues() *sourceQueues {
	return &sourceQueues{pending: make(map[bridge.ChannelID][]bus.InboundMessage)}
}

// claim makes the caller the owner of msg.Source and reports true, or queues
// msg behind the current owner and reports false.
func (q *sourceQueues) claim(msg bus.InboundMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if backlog, owned := q.pending[msg.Source]; owned {
		q.pending[msg.Source] = append(backlog, msg)
		return false
	}
	q.pending[msg.Source] = nil
	return true
}

// next pops the owner's next message, releasing the source when none is left.
func (q *sourceQueues) next(source bridge.ChannelID) (bus.InboundMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog := q.pending[source]
	if len(backlog) == 0 {
		delete(q.pending, source)
		return bus.InboundMessage{}, false
	}
	msg := backlog[0]
	backlog[0] = bus.InboundMessage{}
	q.pending[source] = backlog[1:]
	return msg, true
}

// handleSafely keeps a panicking handler from taking down its worker.
func (e *Engine) handleSafely(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("relay", "Relay handler panicked", map[string]any{
				"relay_id": msg.RelayID,
				"source":   msg.Source.String(),
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			})
		}
	}()
	_, _ = e.Handle(ctx, msg)
}
