package scheduler

import "sync/atomic"

// Handle tracks and cancels a submitted task. Cancellation is advisory: it
// sets a flag the running work is expected to poll at well-defined points,
// it does not preempt already-running work.
type Handle struct {
	id        ID
	status    *atomic.Int32
	cancelled *atomic.Bool
}

// ID returns the task identifier this handle refers to.
func (h Handle) ID() ID { return h.id }

// Status returns the current lifecycle state.
func (h Handle) Status() Status {
	if h.status == nil {
		return StatusFailed
	}
	return Status(h.status.Load())
}

// IsPending reports whether the task has not yet started running.
func (h Handle) IsPending() bool { return h.Status() == StatusPending }

// IsRunning reports whether the task is currently executing.
func (h Handle) IsRunning() bool { return h.Status() == StatusRunning }

// IsDone reports whether the task has reached a terminal state.
func (h Handle) IsDone() bool { return h.Status().isTerminal() }

// Cancel requests cancellation. It does not block and does not guarantee the
// task will observe the request before completing on its own.
func (h Handle) Cancel() bool {
	if h.cancelled == nil {
		return false
	}
	h.cancelled.Store(true)
	return true
}

// IsCancelled reports whether cancellation has been requested.
func (h Handle) IsCancelled() bool {
	return h.cancelled != nil && h.cancelled.Load()
}
