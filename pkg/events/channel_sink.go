package events

// Envelope wraps any event for channel delivery
type Envelope struct {
	// Kind is "progress", "completed", "error" or "login"
	Kind  string
	Event interface{}
}

// ChannelSink forwards events to a buffered channel for the UI/IPC boundary.
// When the buffer is full the event is dropped rather than blocking the
// orchestrator; consumers that care about authoritative state read the
// checkpoint store instead.
type ChannelSink struct {
	ch chan Envelope
}

// NewChannelSink creates a channel sink with the given buffer size
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Envelope, buffer)}
}

// Events returns the receive side of the sink
func (s *ChannelSink) Events() <-chan Envelope {
	return s.ch
}

// Close closes the channel; no events may be emitted afterwards
func (s *ChannelSink) Close() {
	close(s.ch)
}

func (s *ChannelSink) send(kind string, event interface{}) {
	select {
	case s.ch <- Envelope{Kind: kind, Event: event}:
	default:
		// Buffer full, drop. Best-effort delivery only.
	}
}

func (s *ChannelSink) Progress(e ProgressEvent) {
	s.send("progress", e)
}

func (s *ChannelSink) Completed(e CompletedEvent) {
	s.send("completed", e)
}

func (s *ChannelSink) Error(e ErrorEvent) {
	s.send("error", e)
}

func (s *ChannelSink) LoginOutcome(e LoginOutcomeEvent) {
	s.send("login", e)
}
