package api

import (
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/kilnrun/kiln/pkg/stream"
)

// terminalSink serializes frame delivery to one subscriber and closes the
// subscription on the first terminal frame. The run goroutine and the
// handler's replay may race a terminal frame each; whichever arrives
// second is dropped, so the subscriber sees exactly one.
type terminalSink struct {
	write func(stream.Frame) error
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newTerminalSink(write func(stream.Frame) error) *terminalSink {
	return &terminalSink{write: write, done: make(chan struct{})}
}

func (s *terminalSink) Send(f stream.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.write(f)
	if f.Type == stream.FrameComplete || f.Type == stream.FrameError {
		s.closed = true
		close(s.done)
	}
	return err
}

// handleRunStream upgrades to a websocket and follows the run's frames
// until the terminal frame or client disconnect.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()
	sink := newTerminalSink(func(f stream.Frame) error {
		return wsjson.Write(ctx, conn, f)
	})

	if err := s.hub.Attach(runID, sink); err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "run already has a subscriber")
		return
	}
	defer s.hub.Detach(runID)

	// The run may have finished before the socket attached, in which case
	// its terminal frame is gone. Replay it from the store; if the live
	// frame got there first, the sink drops this one.
	if rec, err := s.orch.GetRun(runID); err == nil {
		s.hub.Publish(runID, stream.Frame{Type: stream.FrameComplete, Record: rec})
	}

	select {
	case <-sink.done:
		_ = conn.Close(websocket.StatusNormalClosure, "run finished")
	case <-ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "client disconnected")
	}
}
