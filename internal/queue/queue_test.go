package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

func TestPushThenConsume(t *testing.T) {
	q := New(1)
	task := NewTask("default", "origin/request", render.Request{URL: "https://example.com"})

	require.NoError(t, q.Push(task))

	got := <-q.Tasks()
	assert.Equal(t, task.Bucket, got.Bucket)
	assert.Equal(t, task.Filename, got.Filename)
}

func TestPushAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()

	err := q.Push(NewTask("default", "x", render.Request{}))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReplyBestEffortNeverBlocks(t *testing.T) {
	task := NewTask("default", "x", render.Request{})
	url := "https://cdn.example.com/x.png"

	// No one is listening on Reply; a buffered size-1 send must not block.
	done := make(chan struct{})
	go func() {
		select {
		case task.Reply <- &url:
		default:
		}
		close(done)
	}()
	<-done
}
