// Package stream implements the live-run streaming hub: a registry from
// run id to its single subscriber, and the JSON frame vocabulary delivered
// over it. All frames for a run originate in that run's goroutine, so
// per-run ordering needs no extra machinery; the hub's only job is the
// id-to-sink mapping.
//
// The hub does not buffer for late subscribers: frames published before a
// subscriber attaches are dropped. A production successor should add a
// bounded replay buffer.
package stream

import (
	"sync"
	"time"

	"github.com/kilnrun/kiln/pkg/types"
)

// FrameType tags a streamed frame.
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameStatus    FrameType = "status"
	FrameStdout    FrameType = "stdout"
	FrameStderr    FrameType = "stderr"
	FrameComplete  FrameType = "complete"
	FrameError     FrameType = "error"
)

// Frame is the tagged union sent to subscribers. Exactly one of the
// optional fields is populated per type.
type Frame struct {
	Type      FrameType        `json:"type"`
	RunID     string           `json:"runId"`
	Timestamp time.Time        `json:"timestamp"`
	Stage     string           `json:"stage,omitempty"`
	Data      string           `json:"data,omitempty"`
	Record    *types.RunRecord `json:"record,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Sink receives frames for one subscription. Send errors mean the
// subscriber is gone; publishers may stop sending but must not fail the
// run over it.
type Sink interface {
	Send(Frame) error
}

// Hub maps run ids to their single active subscriber.
type Hub struct {
	mu   sync.Mutex
	subs map[string]Sink
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]Sink)}
}

// Attach registers the subscriber for runID and delivers the connected
// frame. At most one subscriber per id; a second attach is rejected.
func (h *Hub) Attach(runID string, sink Sink) error {
	h.mu.Lock()
	if _, taken := h.subs[runID]; taken {
		h.mu.Unlock()
		return types.E(types.ErrValidation, "run %q already has a subscriber", runID)
	}
	h.subs[runID] = sink
	h.mu.Unlock()

	return sink.Send(Frame{Type: FrameConnected, RunID: runID, Timestamp: time.Now().UTC()})
}

// Detach removes the subscriber for runID, if any.
func (h *Hub) Detach(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, runID)
}

// Publish delivers a frame to runID's subscriber. Frames for runs without
// a subscriber are dropped.
func (h *Hub) Publish(runID string, f Frame) {
	h.mu.Lock()
	sink := h.subs[runID]
	h.mu.Unlock()

	if sink == nil {
		return
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	f.RunID = runID
	_ = sink.Send(f)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Frame) error

func (f SinkFunc) Send(fr Frame) error { return f(fr) }
