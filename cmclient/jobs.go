package cmclient

import "context"

// ResponseFunc sends a correlated reply frame back to whoever sent the
// frame a job callback is responding to. It stamps target_job on the
// caller's header automatically (spec §4.5 step 6).
type ResponseFunc func(ctx context.Context, hdr Header, body []byte, cb ResponseCallback) error

// ResponseCallback is the continuation stored in the job registry and
// invoked once a correlated response arrives. reply is non-nil only when
// the response frame itself carried a non-sentinel source job id.
type ResponseCallback func(hdr Header, body []byte, reply ResponseFunc)

// jobRegistry maps source job ids to pending response continuations. It is
// only ever touched while the client's dispatch mutex is held, so it needs
// no internal locking of its own (spec §5's single-threaded event loop).
type jobRegistry struct {
	next    uint64
	pending map[uint64]ResponseCallback
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{pending: make(map[uint64]ResponseCallback)}
}

// alloc pre-increments the counter and stores cb under the new id, matching
// spec §4.3: ids are monotonically increasing starting at 1 within one
// connection, never reusing the NoJobID sentinel.
func (r *jobRegistry) alloc(cb ResponseCallback) uint64 {
	r.next++
	id := r.next
	r.pending[id] = cb
	return id
}

// take removes and returns the callback registered under id, if any.
// NoJobID is never looked up (callers must check before calling take).
func (r *jobRegistry) take(id uint64) (ResponseCallback, bool) {
	cb, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return cb, ok
}

// clear drops all pending callbacks. If reject is non-nil, each dropped
// callback is invoked with it instead of being silently discarded — the
// opt-in behavior spec §7 recommends for WithRejectPendingJobsOnDisconnect.
func (r *jobRegistry) clear(reject func(ResponseCallback)) {
	pending := r.pending
	r.pending = make(map[uint64]ResponseCallback)
	if reject == nil {
		return
	}
	for _, cb := range pending {
		reject(cb)
	}
}

// reset restarts the counter at 0 and drops any pending callbacks without
// invoking them; called on every new Connect (spec §4.3).
func (r *jobRegistry) reset() {
	r.next = 0
	r.pending = make(map[uint64]ResponseCallback)
}
