package external

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeRoundTrip(t *testing.T) {
	type payload struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	b, err := Encode(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatal(err)
	}
	var got payload
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.A != 1 || got.B != "x" {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	big := make([]byte, MaxEncodedSize)
	for i := range big {
		big[i] = 'a'
	}
	_, err := Encode(string(big))
	if err == nil {
		t.Fatal("expected error for oversize payload")
	}
}

func TestCloudBackoffInsufficientHeap(t *testing.T) {
	var b CloudBackoff
	now := time.Now()
	if !b.ShouldAttempt(now) {
		t.Fatal("fresh backoff should allow an attempt")
	}
	b.OnInsufficientHeap(now)
	if b.ShouldAttempt(now.Add(time.Second)) {
		t.Fatal("should not attempt immediately after insufficient-heap backoff")
	}
	if !b.ShouldAttempt(now.Add(InsufficientHeapBackoff + time.Second)) {
		t.Fatal("should attempt again once the backoff elapses")
	}
}

func TestCloudBackoffQuickDisconnectEscalates(t *testing.T) {
	var b CloudBackoff
	now := time.Now()
	for i := 0; i < quickDisconnectThreshold; i++ {
		b.OnConnected(now)
		now = now.Add(time.Second) // well within quickDisconnectWindow
		b.OnDisconnected(now)
	}
	if b.ShouldAttempt(now.Add(time.Second)) {
		t.Fatal("expected long backoff after repeated quick disconnects")
	}
	if !b.ShouldAttempt(now.Add(QuickDisconnectBackoff + time.Second)) {
		t.Fatal("should attempt again once the quick-disconnect backoff elapses")
	}
}

func TestCloudBackoffLongSessionDoesNotEscalate(t *testing.T) {
	var b CloudBackoff
	now := time.Now()
	b.OnConnected(now)
	now = now.Add(time.Hour)
	b.OnDisconnected(now)
	if !b.ShouldAttempt(now) {
		t.Fatal("a long session's disconnect should not trigger backoff")
	}
}
