package server

import (
	"errors"
	"strings"
	"sync"
)

// GATT interface names used by the notification convenience producers.
const (
	InterfaceCharacteristic = "org.bluez.GattCharacteristic1"
	InterfaceDescriptor     = "org.bluez.GattDescriptor1"
)

var (
	// ErrQueueEmpty is the normal result of draining an empty queue; it
	// is not a failure.
	ErrQueueEmpty = errors.New("update queue is empty")

	// ErrBufferTooSmall reports a caller-supplied buffer that cannot hold
	// the encoded object path. Distinct from ErrQueueEmpty: the record
	// exists but was not delivered.
	ErrBufferTooSmall = errors.New("buffer too small for object path")
)

// Record identifies an externally-owned entity whose data changed and
// should be signaled to remote clients. Records have no identity beyond
// their queue position; duplicates are kept and never coalesced.
type Record struct {
	ObjectPath    string
	InterfaceName string
}

// UpdateQueue is a thread-safe queue of change-notification records,
// bounded only by memory. Push inserts at the front and Pop reads from the
// front, so the public contract is last-in-first-out; callers relying on
// ordering must account for that.
//
// Any number of producers may push concurrently. Ordering across pops is
// only guaranteed for a single consumer loop; the API does not prevent
// multiple consumers, but correctness under them is not guaranteed.
type UpdateQueue struct {
	mu sync.Mutex
	// records[len-1] is the front: the most recently pushed element.
	records []Record
}

// NewUpdateQueue returns an empty queue.
func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{}
}

// Push inserts a record at the front of the queue. It always succeeds and
// never blocks a producer beyond the mutation itself.
func (q *UpdateQueue) Push(objectPath, interfaceName string) {
	q.mu.Lock()
	q.records = append(q.records, Record{ObjectPath: objectPath, InterfaceName: interfaceName})
	q.mu.Unlock()
}

// Pop reads the front record. With keep=true it is a non-destructive peek;
// with keep=false the record is removed. The second result is false when
// the queue is empty, which is a normal condition rather than an error.
func (q *UpdateQueue) Pop(keep bool) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.records)
	if n == 0 {
		return Record{}, false
	}
	rec := q.records[n-1]
	if !keep {
		q.records[n-1] = Record{}
		q.records = q.records[:n-1]
	}
	return rec, true
}

// PopObjectPathInto copies the front record's object path into buf and
// returns the number of bytes written. The path crosses process
// boundaries as a NUL-free UTF-8 string; a buffer too small for it yields
// ErrBufferTooSmall and leaves the queue unchanged even with keep=false.
func (q *UpdateQueue) PopObjectPathInto(buf []byte, keep bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.records)
	if n == 0 {
		return 0, ErrQueueEmpty
	}
	path := q.records[n-1].ObjectPath
	if len(buf) < len(path) {
		return 0, ErrBufferTooSmall
	}
	if !keep {
		q.records[n-1] = Record{}
		q.records = q.records[:n-1]
	}
	return copy(buf, path), nil
}

// IsEmpty reports whether the queue holds no records.
func (q *UpdateQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of records waiting in the queue.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Clear removes all records.
func (q *UpdateQueue) Clear() {
	q.mu.Lock()
	q.records = nil
	q.mu.Unlock()
}

// validObjectPath rejects paths that cannot cross the process boundary as
// NUL-free UTF-8.
func validObjectPath(path string) bool {
	return !strings.ContainsRune(path, 0)
}
