package protocol

import (
	"time"

	"brewos.dev/msgtypes"
)

// MaxPending is the cap on outstanding unacknowledged commands a sender
// may hold at once (spec.md §3 "Pending command").
const MaxPending = 4

// BackpressureThreshold is the pending-table occupancy at which a side
// starts NACKing incoming commands instead of processing them (spec.md
// §4.1 "Backpressure policy"), matching the 3-of-4 ratio of
// original_source's PROTOCOL_BACKPRESSURE_THRESHOLD against
// PROTOCOL_MAX_PENDING_CMDS.
const BackpressureThreshold = 3

// AckTimeout is the wait before a pending command is retried. It is
// fixed: an ack_timeout_ms value received in a handshake is not applied.
const AckTimeout = time.Second

// MaxRetry is the default retry cap before a command is dropped and
// surfaced as a fault.
const MaxRetry = 3

type pendingEntry struct {
	typ     msgtypes.Type
	seq     uint8
	payload []byte
	retries int
	sentAt  time.Time
}

// pendingTable holds retry records for commands this side originated
// (spec.md §3 "Pending command" lifecycle: created on send, cleared on
// matching ACK, retried on timeout up to MaxRetry, discarded on
// exhaustion).
type pendingTable struct {
	entries     []pendingEntry
	ackTimeout  time.Duration
	maxRetry    int
}

func newPendingTable() *pendingTable {
	return &pendingTable{ackTimeout: AckTimeout, maxRetry: MaxRetry}
}

func (t *pendingTable) Len() int { return len(t.entries) }

func (t *pendingTable) Full() bool { return len(t.entries) >= MaxPending }

// find returns the index of an existing pending entry of the given type,
// used by SendCoalesced to replace idempotent config commands rather
// than queue a second one (spec.md §5 "Cancellation").
func (t *pendingTable) find(typ msgtypes.Type) int {
	for i, e := range t.entries {
		if e.typ == typ {
			return i
		}
	}
	return -1
}

func (t *pendingTable) add(e pendingEntry) {
	t.entries = append(t.entries, e)
}

func (t *pendingTable) replace(idx int, e pendingEntry) {
	t.entries[idx] = e
}

// cancel removes the entry matching (typ, seq) - the ACK matches on the
// command's own seq, not the ACK packet's seq (spec.md §4.1).
func (t *pendingTable) cancel(typ msgtypes.Type, seq uint8) bool {
	for i, e := range t.entries {
		if e.typ == typ && e.seq == seq {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// due returns entries whose ack timeout has elapsed as of now, for the
// caller to retransmit (spec.md §4.1 tick()).
func (t *pendingTable) due(now time.Time) []int {
	var idx []int
	for i, e := range t.entries {
		if now.Sub(e.sentAt) >= t.ackTimeout {
			idx = append(idx, i)
		}
	}
	return idx
}

func (t *pendingTable) touch(i int, now time.Time) {
	t.entries[i].retries++
	t.entries[i].sentAt = now
}

func (t *pendingTable) removeAt(i int) pendingEntry {
	e := t.entries[i]
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return e
}
