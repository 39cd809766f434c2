// Package queue is the single fan-in task queue shared across all HTTP
// handlers and drained by both worker classes (§4.C5). It is deliberately
// thin: a buffered Go channel already gives FIFO ordering, exactly-once
// delivery, and safe multi-producer/multi-consumer access, so there is
// nothing to build beyond a typed wrapper and a closed-queue signal.
package queue

import (
	"errors"

	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// ErrClosed is returned by Push once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Task is one in-flight render request, queued by a handler and consumed by
// exactly one worker. Reply is a size-1 buffered channel so a worker's
// best-effort send never blocks past one slot even if the handler gave up.
type Task struct {
	Reply    chan *string
	Bucket   string
	Filename string // ArtifactKey, without extension
	Request  render.Request
}

// NewTask allocates a Task with its reply channel ready to receive.
func NewTask(bucket, filename string, req render.Request) Task {
	return Task{
		Reply:    make(chan *string, 1),
		Bucket:   bucket,
		Filename: filename,
		Request:  req,
	}
}

// Queue is the shared multi-producer/multi-consumer channel of tasks.
type Queue struct {
	tasks  chan Task
	closed chan struct{}
}

// New builds a Queue with the given buffer size. A generous buffer keeps
// Push from blocking a handler goroutine under burst load; admission
// control (rate limiting) happens upstream in the handlers, not here.
func New(buffer int) *Queue {
	return &Queue{
		tasks:  make(chan Task, buffer),
		closed: make(chan struct{}),
	}
}

// Push enqueues t. It returns ErrClosed if the queue has been shut down,
// which handlers translate to a 503 (§7: Fatal/queue-closed propagation).
func (q *Queue) Push(t Task) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.tasks <- t:
		return nil
	case <-q.closed:
		return ErrClosed
	}
}

// Tasks returns the receive side of the queue for workers to range/select over.
func (q *Queue) Tasks() <-chan Task {
	return q.tasks
}

// Close signals shutdown. In-flight tasks already buffered are still
// delivered to workers draining Tasks(); no new Push succeeds afterward.
func (q *Queue) Close() {
	close(q.closed)
}
