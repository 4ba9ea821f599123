package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSink tallies calls per event kind
type countingSink struct {
	progress, completed, errs, login int
}

func (s *countingSink) Progress(ProgressEvent)         { s.progress++ }
func (s *countingSink) Completed(CompletedEvent)       { s.completed++ }
func (s *countingSink) Error(ErrorEvent)               { s.errs++ }
func (s *countingSink) LoginOutcome(LoginOutcomeEvent) { s.login++ }

func TestMultiSinkFansOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{}
	m := MultiSink{a, b}

	m.Progress(ProgressEvent{TaskID: "t"})
	m.Completed(CompletedEvent{TaskID: "t"})
	m.Error(ErrorEvent{TaskID: "t", Code: NetworkError})
	m.LoginOutcome(LoginOutcomeEvent{SessionID: "s", Outcome: OutcomeSuccess})

	for _, s := range []*countingSink{a, b} {
		assert.Equal(t, 1, s.progress)
		assert.Equal(t, 1, s.completed)
		assert.Equal(t, 1, s.errs)
		assert.Equal(t, 1, s.login)
	}
}

func TestChannelSinkDelivery(t *testing.T) {
	sink := NewChannelSink(4)

	sink.Progress(ProgressEvent{TaskID: "t", CurrentPage: 3})
	sink.Completed(CompletedEvent{TaskID: "t", TotalCount: 42})

	env := <-sink.Events()
	assert.Equal(t, "progress", env.Kind)
	progress, ok := env.Event.(ProgressEvent)
	require.True(t, ok)
	assert.Equal(t, 3, progress.CurrentPage)

	env = <-sink.Events()
	assert.Equal(t, "completed", env.Kind)
	completed, ok := env.Event.(CompletedEvent)
	require.True(t, ok)
	assert.Equal(t, 42, completed.TotalCount)
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2)

	// Nothing reads; the third event must be dropped, not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			sink.Progress(ProgressEvent{TaskID: "t", CurrentPage: i + 1})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emitting into a full sink must not block")
	}

	sink.Close()
	var received []Envelope
	for env := range sink.Events() {
		received = append(received, env)
	}
	require.Len(t, received, 2)
	assert.Equal(t, 1, received[0].Event.(ProgressEvent).CurrentPage)
	assert.Equal(t, 2, received[1].Event.(ProgressEvent).CurrentPage)
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	sink.Progress(ProgressEvent{})
	sink.Completed(CompletedEvent{})
	sink.Error(ErrorEvent{})
	sink.LoginOutcome(LoginOutcomeEvent{})
}
