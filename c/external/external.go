// Package external defines the interfaces through which the C-MCU talks
// to collaborators explicitly out of this module's scope — the web
// server, the cloud link, and the MQTT client (spec.md §1 "Deliberately
// OUT OF SCOPE" / §6 "Human interfaces") — and implements the one piece
// of ambient plumbing shared by all of them: a bounded, pool-backed JSON
// encoder (spec.md §9 "String-based JSON assembly is replaced by a
// bounded, pool-backed serialiser to cap peak heap usage"), and the
// cloud link's non-blocking backoff policy (spec.md §5 "Cloud backoff is
// non-blocking").
package external

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"brewos.dev/c/runtime"
)

// StatusSink receives full or delta snapshots to forward to one fan-out
// destination (WebSocket client, cloud socket, MQTT topic).
type StatusSink interface {
	PushFull(*runtime.Snapshot) error
	PushDelta(*runtime.Snapshot, runtime.FieldGroup) error
}

// CommandSource delivers user-issued commands (brew start/stop, setpoint
// changes, mode requests) from an external client into the machine's
// command path. The machine may ACK, NACK, or ignore each one.
type CommandSource interface {
	Commands() <-chan Command
}

// Command is a decoded external command, independent of which transport
// (WebSocket, MQTT, cloud) it arrived over.
type Command struct {
	Verb    string
	Payload json.RawMessage
}

// CloudLink is the persistent outbound connection to the cloud backend.
// Its lifecycle (connect, authenticate, stream, reconnect) lives outside
// this module; only the shape needed to drive backoff and status
// fan-out belongs here.
type CloudLink interface {
	StatusSink
	Connected() bool
}

// encoderPool recycles bytes.Buffer instances for JSON encoding so a
// burst of status broadcasts doesn't generate one allocation per
// message (spec.md §9 "no heap allocation on hot path" design note,
// resolving the MsgPack-vs-JSON Open Question in favour of JSON with a
// bounded encoder).
var encoderPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// MaxEncodedSize caps a single encoded message. Encode marshals the
// whole value first and then returns an error instead of a result
// longer than this, so an unexpectedly large snapshot is never handed on.
const MaxEncodedSize = 8192

// Encode marshals v to JSON using a pooled buffer, returning a copy of
// the result (the pooled buffer is reused immediately after, so callers
// must not retain its backing array).
func Encode(v any) ([]byte, error) {
	buf := encoderPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer encoderPool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if buf.Len() > MaxEncodedSize {
		return nil, errEncodedTooLarge
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

var errEncodedTooLarge = &encodedTooLargeError{}

type encodedTooLargeError struct{}

func (*encodedTooLargeError) Error() string { return "external: encoded message exceeds MaxEncodedSize" }

// CloudBackoff implements the non-blocking reconnect policy of spec.md
// §5: "a deadline is stored, and loop() simply returns early while the
// deadline is in the future." It tracks quick-disconnect streaks to
// escalate to a longer backoff.
type CloudBackoff struct {
	deadline time.Time

	quickDisconnects int
	lastConnectedAt  time.Time
}

// InsufficientHeapBackoff and QuickDisconnectBackoff are the two
// named timeouts from spec.md §5.
const (
	InsufficientHeapBackoff = 60 * time.Second
	QuickDisconnectBackoff  = 30 * time.Second

	// quickDisconnectWindow is how short a session must be to count
	// toward the quick-disconnect streak.
	quickDisconnectWindow = 5 * time.Second
	// quickDisconnectThreshold is how many quick disconnects in a row
	// trigger the long backoff (spec.md: "after three quick drops").
	quickDisconnectThreshold = 3
)

// ShouldAttempt reports whether the caller may attempt a new connection
// now, i.e. loop() should proceed past the backoff check.
func (b *CloudBackoff) ShouldAttempt(now time.Time) bool {
	return !now.Before(b.deadline)
}

// OnInsufficientHeap is called when a connect attempt failed because the
// platform didn't have enough free heap for TLS; this skips the TLS
// attempt entirely next time until the deadline passes.
func (b *CloudBackoff) OnInsufficientHeap(now time.Time) {
	b.deadline = now.Add(InsufficientHeapBackoff)
}

// OnConnected is called once a session is established.
func (b *CloudBackoff) OnConnected(now time.Time) {
	b.lastConnectedAt = now
}

// OnDisconnected is called when a session ends; it tracks the
// quick-disconnect streak and escalates to a long backoff after
// quickDisconnectThreshold consecutive short sessions.
func (b *CloudBackoff) OnDisconnected(now time.Time) {
	if !b.lastConnectedAt.IsZero() && now.Sub(b.lastConnectedAt) < quickDisconnectWindow {
		b.quickDisconnects++
	} else {
		b.quickDisconnects = 0
	}
	if b.quickDisconnects >= quickDisconnectThreshold {
		b.deadline = now.Add(QuickDisconnectBackoff)
		b.quickDisconnects = 0
	}
}
