package http

// StreamStatus is the state of the push-based body delivery machine.
// Transitions are one-directional: None -> Open -> Finish | Error. The only
// reverse edge is QuitStreamMode, which is a reuse/reset path, not a
// mid-stream recovery.
type StreamStatus int

const (
	StreamNone StreamStatus = iota
	StreamOpen
	StreamFinish
	StreamError
)

// RequestStreamReader receives body chunks as they arrive on the wire when
// a request runs in streaming mode. OnStreamData returning an error aborts
// the stream. OnStreamFinish is called exactly once with nil on clean
// completion or the fault that ended delivery.
type RequestStreamReader interface {
	OnStreamData(data []byte) error
	OnStreamFinish(err error)
}

// StreamStatus reports the current streaming state.
func (r *Request) StreamStatus() StreamStatus {
	return r.streamStatus
}

// IsStreamMode reports whether the request left buffered mode. While true,
// buffered-body accessors return empty views.
func (r *Request) IsStreamMode() bool {
	return r.streamStatus > StreamNone
}

// StreamStart switches the request from buffered to streaming delivery.
// Only meaningful from the None state.
func (r *Request) StreamStart() {
	if r.streamStatus == StreamNone {
		r.streamStatus = StreamOpen
	}
}

// SetStreamReader attaches the reader that body chunks are pushed to,
// opening the stream if it was not open yet. Chunks that arrived before the
// reader attached are flushed immediately, and if the stream already
// reached a terminal state the reader is notified right away.
func (r *Request) SetStreamReader(reader RequestStreamReader) {
	r.streamReader = reader
	if r.streamStatus == StreamNone {
		r.streamStatus = StreamOpen
	}
	if reader == nil {
		return
	}
	r.flushStreamPending()
	switch r.streamStatus {
	case StreamFinish:
		reader.OnStreamFinish(nil)
	case StreamError:
		reader.OnStreamFinish(r.streamFault)
	}
}

func (r *Request) flushStreamPending() {
	if r.streamReader == nil || len(r.streamPending) == 0 {
		return
	}
	pending := r.streamPending
	r.streamPending = nil
	if err := r.streamReader.OnStreamData(pending); err != nil {
		r.StreamError(err)
	}
}

// StreamFinish marks end-of-body: all chunks have been delivered. The
// attached reader is signaled success and the registered finish callback
// fires exactly once.
func (r *Request) StreamFinish() {
	if r.streamStatus != StreamOpen {
		return
	}
	r.streamStatus = StreamFinish
	if r.streamReader != nil {
		r.flushStreamPending()
		// flushStreamPending may have aborted the stream.
		if r.streamStatus == StreamFinish && r.streamReader != nil {
			r.streamReader.OnStreamFinish(nil)
		}
	}
	r.fireStreamFinishCb()
}

// StreamError moves the stream to the Error terminal state carrying fault.
// The reader is signaled the fault and the finish callback is unblocked.
// Connection-level timeouts and resets surface through this path.
func (r *Request) StreamError(fault error) {
	if r.streamStatus != StreamOpen {
		return
	}
	r.streamStatus = StreamError
	r.streamFault = fault
	r.streamPending = nil
	if r.streamReader != nil {
		r.streamReader.OnStreamFinish(fault)
	}
	r.fireStreamFinishCb()
}

// StreamFault returns the fault payload attached to the Error state, nil
// otherwise.
func (r *Request) StreamFault() error {
	return r.streamFault
}

// WaitForStreamFinish registers a callback fired exactly once when the
// stream reaches a terminal state. Registration after the transition
// already happened invokes the callback immediately, so no notification is
// ever missed.
func (r *Request) WaitForStreamFinish(cb func()) {
	if r.streamStatus == StreamFinish || r.streamStatus == StreamError {
		if cb != nil && !r.streamCbFired {
			r.streamCbFired = true
			cb()
		}
		return
	}
	r.streamFinishCb = cb
}

func (r *Request) fireStreamFinishCb() {
	if r.streamCbFired || r.streamFinishCb == nil {
		return
	}
	r.streamCbFired = true
	cb := r.streamFinishCb
	r.streamFinishCb = nil
	cb()
}

// QuitStreamMode returns the request to buffered semantics. Intended for
// reuse/reset paths only.
func (r *Request) QuitStreamMode() {
	r.streamStatus = StreamNone
	r.streamReader = nil
	r.streamFinishCb = nil
	r.streamFault = nil
	r.streamPending = nil
	r.streamCbFired = false
}
