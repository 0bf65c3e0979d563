package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects frames for assertions.
type recordingSink struct {
	frames []Frame
}

func (s *recordingSink) Send(f Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func TestAttachDeliversConnectedFirst(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}

	require.NoError(t, h.Attach("run_a", sink))
	h.Publish("run_a", Frame{Type: FrameStdout, Data: "hi"})

	require.Len(t, sink.frames, 2)
	assert.Equal(t, FrameConnected, sink.frames[0].Type)
	assert.Equal(t, "run_a", sink.frames[0].RunID)
	assert.Equal(t, FrameStdout, sink.frames[1].Type)
	assert.Equal(t, "hi", sink.frames[1].Data)
}

func TestSecondSubscriberRejected(t *testing.T) {
	h := NewHub()

	require.NoError(t, h.Attach("run_a", &recordingSink{}))
	assert.Error(t, h.Attach("run_a", &recordingSink{}))
}

func TestPublishWithoutSubscriberIsDropped(t *testing.T) {
	h := NewHub()
	// Must not panic or block.
	h.Publish("run_missing", Frame{Type: FrameStatus, Stage: "running"})
}

func TestDetachStopsDelivery(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}

	require.NoError(t, h.Attach("run_a", sink))
	h.Detach("run_a")
	h.Publish("run_a", Frame{Type: FrameStdout, Data: "late"})

	require.Len(t, sink.frames, 1)
	assert.Equal(t, FrameConnected, sink.frames[0].Type)
}

func TestDetachFreesIDForReattach(t *testing.T) {
	h := NewHub()

	require.NoError(t, h.Attach("run_a", &recordingSink{}))
	h.Detach("run_a")
	assert.NoError(t, h.Attach("run_a", &recordingSink{}))
}

func TestPublishStampsRunIDAndTime(t *testing.T) {
	h := NewHub()
	sink := &recordingSink{}
	require.NoError(t, h.Attach("run_a", sink))

	h.Publish("run_a", Frame{Type: FrameStderr, Data: "oops"})
	f := sink.frames[1]
	assert.Equal(t, "run_a", f.RunID)
	assert.False(t, f.Timestamp.IsZero())
}
