package relay

import "sync/atomic"

// Stats counts relay outcomes since process start.
type Stats struct {
	received            atomic.Int64
	ignoredAutomated    atomic.Int64
	relayed             atomic.Int64
	sendFailures        atomic.Int64
	skippedUnresolvable atomic.Int64
	attachmentFailures  atomic.Int64
	lookupFailures      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats. Relayed counts successful
// (message, target) deliveries, not messages.
type StatsSnapshot struct {
	Received            int64 `json:"received"`
	IgnoredAutomated    int64 `json:"ignored_automated"`
	Relayed             int64 `json:"relayed"`
	SendFailures        int64 `json:"send_failures"`
	SkippedUnresolvable int64 `json:"skipped_unresolvable"`
	AttachmentFailures  int64 `json:"attachment_failures"`
	LookupFailures      int64 `json:"lookup_failures"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:            s.received.Load(),
		IgnoredAutomated:    s.ignoredAutomated.Load(),
		Relayed:             s.relayed.Load(),
		SendFailures:        s.sendFailures.Load(),
		SkippedUnresolvable: s.skippedUnresolvable.Load(),
		AttachmentFailures:  s.attachmentFailures.Load(),
		LookupFailures:      s.lookupFailures.Load(),
	}
}
