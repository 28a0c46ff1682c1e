package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framegraph/hal"
)

// MaxQueues is the process-wide limit on logical submission queues.
const MaxQueues = 8

// QueueIndex identifies a logical submission queue.
type QueueIndex = uint8

// queueSlot holds the per-queue counters and completion broadcast state.
// Counters use relaxed atomics; only the owning queue's producer thread
// writes them, and writes are monotonic.
type queueSlot struct {
	lastSubmittedCommand atomic.Uint64
	lastCompletedCommand atomic.Uint64
	lastSubmissionTime   atomic.Int64
	lastCompletionTime   atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond

	// syncEvent is the backend timeline event peers wait on; nil for
	// queues whose backend is external to the current API.
	syncEvent atomic.Value // eventBox
}

// eventBox wraps an event so atomic.Value accepts a nil event with a
// consistent concrete type.
type eventBox struct {
	event hal.Event
}

// queueTable is the process-wide queue registry.
var queueTable struct {
	// allocated is a bitmap of live queue indices, mutated under a
	// CAS spin-lock.
	allocated atomic.Uint32
	slots     [MaxQueues]queueSlot
}

func init() {
	for i := range queueTable.slots {
		s := &queueTable.slots[i]
		s.cond = sync.NewCond(&s.mu)
	}
}

// Queue is a logical submission channel with its own command-index
// counters. At most MaxQueues queues exist at any time.
type Queue struct {
	index QueueIndex
}

// AllocateQueue claims the lowest free queue index and zeroes its
// counters. Exceeding MaxQueues is a caller bug and panics.
func AllocateQueue() *Queue {
	for {
		bits := queueTable.allocated.Load()
		free := ^bits & (1<<MaxQueues - 1)
		if free == 0 {
			panic(fmt.Sprintf("framegraph: %v (max %d)", ErrQueuesExhausted, MaxQueues))
		}
		index := QueueIndex(0)
		for free&(1<<index) == 0 {
			index++
		}
		if !queueTable.allocated.CompareAndSwap(bits, bits|1<<index) {
			runtime.Gosched()
			continue
		}
		slot := &queueTable.slots[index]
		slot.lastSubmittedCommand.Store(0)
		slot.lastCompletedCommand.Store(0)
		slot.lastSubmissionTime.Store(0)
		slot.lastCompletionTime.Store(0)
		slot.syncEvent.Store(eventBox{})
		return &Queue{index: index}
	}
}

// Dispose releases the queue index for reuse. Counters remain readable
// until the index is reallocated.
func (q *Queue) Dispose() {
	for {
		bits := queueTable.allocated.Load()
		if queueTable.allocated.CompareAndSwap(bits, bits&^(1<<q.index)) {
			return
		}
	}
}

// Index returns the queue's index.
func (q *Queue) Index() QueueIndex {
	return q.index
}

// LastSubmittedCommand returns the signal value of the most recently
// committed command buffer on this queue.
func (q *Queue) LastSubmittedCommand() uint64 {
	return queueTable.slots[q.index].lastSubmittedCommand.Load()
}

// CommandSubmitted records a command buffer commit with the given signal
// value. Values must increase monotonically; a regression panics.
func (q *Queue) CommandSubmitted(value uint64) {
	slot := &queueTable.slots[q.index]
	if prev := slot.lastSubmittedCommand.Load(); value < prev {
		panic(fmt.Sprintf("framegraph: queue %d submitted command %d after %d", q.index, value, prev))
	}
	slot.lastSubmittedCommand.Store(value)
	slot.lastSubmissionTime.Store(time.Now().UnixNano())
}

// LastCompletedCommand returns the signal value of the most recently
// completed command buffer on this queue.
func (q *Queue) LastCompletedCommand() uint64 {
	return queueTable.slots[q.index].lastCompletedCommand.Load()
}

// CommandCompleted records completion of the command buffer with the given
// signal value and wakes all waiters. Values must increase monotonically;
// a regression panics.
func (q *Queue) CommandCompleted(value uint64) {
	slot := &queueTable.slots[q.index]
	if prev := slot.lastCompletedCommand.Load(); value < prev {
		panic(fmt.Sprintf("framegraph: queue %d completed command %d after %d", q.index, value, prev))
	}
	if submitted := slot.lastSubmittedCommand.Load(); value > submitted {
		panic(fmt.Sprintf("framegraph: queue %d completed command %d before it was submitted (last %d)", q.index, value, submitted))
	}
	slot.mu.Lock()
	slot.lastCompletedCommand.Store(value)
	slot.lastCompletionTime.Store(time.Now().UnixNano())
	slot.mu.Unlock()
	slot.cond.Broadcast()
}

// WaitForCommandCompletion blocks until LastCompletedCommand reaches
// index. Returns immediately if it already has.
func (q *Queue) WaitForCommandCompletion(index uint64) {
	slot := &queueTable.slots[q.index]
	if slot.lastCompletedCommand.Load() >= index {
		return
	}
	slot.mu.Lock()
	// Re-check under the lock; the broadcast races with the fast path.
	for slot.lastCompletedCommand.Load() < index {
		slot.cond.Wait()
	}
	slot.mu.Unlock()
}

// LastSubmissionTime returns the wall-clock time of the latest commit,
// in nanoseconds since the Unix epoch.
func (q *Queue) LastSubmissionTime() int64 {
	return queueTable.slots[q.index].lastSubmissionTime.Load()
}

// LastCompletionTime returns the wall-clock time of the latest completion,
// in nanoseconds since the Unix epoch.
func (q *Queue) LastCompletionTime() int64 {
	return queueTable.slots[q.index].lastCompletionTime.Load()
}

// SetSyncEvent publishes the backend timeline event other queues in the
// same API encode waits against. Pass nil for externally-driven queues.
func (q *Queue) SetSyncEvent(event hal.Event) {
	queueTable.slots[q.index].syncEvent.Store(eventBox{event: event})
}

// queueSyncEvent returns the published sync event for an arbitrary queue
// index, or nil if the queue is external.
func queueSyncEvent(index QueueIndex) hal.Event {
	v := queueTable.slots[index].syncEvent.Load()
	if v == nil {
		return nil
	}
	box, _ := v.(eventBox)
	return box.event
}

// queueByIndex returns a view of an allocated queue's counters without
// claiming ownership. Used by executors to wait on peer queues.
func queueByIndex(index QueueIndex) *Queue {
	return &Queue{index: index}
}
