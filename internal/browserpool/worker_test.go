package browserpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GitaiQAQ/render-dispatch/internal/blobstore"
	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

type fakePage struct {
	navigateErr   error
	screenshotErr error
	pdfErr        error
	navigateCalls int
	closed        bool

	lastScreenshotParams ScreenshotParams
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navigateCalls++
	return f.navigateErr
}

func (f *fakePage) Screenshot(ctx context.Context, p ScreenshotParams) ([]byte, error) {
	f.lastScreenshotParams = p
	if f.screenshotErr != nil {
		return nil, f.screenshotErr
	}
	return []byte("png-bytes"), nil
}

func (f *fakePage) PDF(ctx context.Context, p PDFParams) ([]byte, error) {
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return []byte("pdf-bytes"), nil
}

func (f *fakePage) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

type fakeStore struct {
	writeErr error
	written  map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{written: make(map[string][]byte)}
}

func (s *fakeStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := s.written[path]
	return ok, nil
}

func (s *fakeStore) Stat(ctx context.Context, path string) (blobstore.Info, error) {
	return blobstore.Info{}, blobstore.ErrNotExist
}

func (s *fakeStore) Write(ctx context.Context, path string, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written[path] = data
	return nil
}

func (s *fakeStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, ok := s.written[path]
	if !ok {
		return nil, blobstore.ErrNotExist
	}
	return data, nil
}

func (s *fakeStore) EnsureDir(ctx context.Context, prefix string) error { return nil }

func (s *fakeStore) PresignRead(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://cdn.test/" + path, nil
}

type fakeResolver struct {
	store *fakeStore
}

func (r *fakeResolver) Store(bucket string) (blobstore.Store, error) { return r.store, nil }
func (r *fakeResolver) PDFSettle(bucket string) time.Duration        { return 0 }
func (r *fakeResolver) PresignTTL(bucket string) time.Duration       { return time.Hour }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerHandleSuccess(t *testing.T) {
	page := &fakePage{}
	store := newFakeStore()
	tasks := make(chan queue.Task, 1)
	dead := make(chan int, 1)

	w := NewWorker(0, render.KindScreenshot, page, tasks, dead, &fakeResolver{store: store}, time.Second, discardLogger())

	task := queue.NewTask("default", "origin/request", render.Request{
		URL: "https://example.com", Kind: render.KindScreenshot, Format: render.FormatPNG, Width: 800, Height: 600, Scale: 10,
	})

	ok := w.handle(context.Background(), task)
	assert.True(t, ok)

	select {
	case url := <-task.Reply:
		require.NotNil(t, url)
		assert.Equal(t, "https://cdn.test/origin/request.png", *url)
	default:
		t.Fatal("expected a reply")
	}

	assert.Contains(t, store.written, "origin/request.png")
}

func TestWorkerHandlePassesOmitBackgroundToScreenshot(t *testing.T) {
	page := &fakePage{}
	store := newFakeStore()
	tasks := make(chan queue.Task, 1)
	dead := make(chan int, 1)

	w := NewWorker(0, render.KindScreenshot, page, tasks, dead, &fakeResolver{store: store}, time.Second, discardLogger())

	task := queue.NewTask("default", "origin/request", render.Request{
		URL: "https://example.com", Kind: render.KindScreenshot, Format: render.FormatPNG,
		Width: 800, Height: 600, Scale: 10, OmitBackground: true,
	})

	ok := w.handle(context.Background(), task)
	assert.True(t, ok)
	assert.True(t, page.lastScreenshotParams.OmitBackground, "omit_background must reach the page driver")
}

func TestWorkerHandleNavigationTimeoutRetiresWorker(t *testing.T) {
	page := &fakePage{navigateErr: ErrNavigationTimeout}
	store := newFakeStore()
	tasks := make(chan queue.Task, 1)
	dead := make(chan int, 1)

	w := NewWorker(3, render.KindPDF, page, tasks, dead, &fakeResolver{store: store}, time.Second, discardLogger())

	task := queue.NewTask("default", "origin/request", render.Request{URL: "https://example.com", Kind: render.KindPDF, Scale: 10})

	ok := w.handle(context.Background(), task)
	assert.False(t, ok, "worker must stop after a navigation timeout")

	select {
	case url := <-task.Reply:
		assert.Nil(t, url)
	default:
		t.Fatal("expected a nil reply")
	}

	select {
	case id := <-dead:
		assert.Equal(t, 3, id)
	default:
		t.Fatal("expected worker to report itself dead")
	}
}

func TestWorkerHandleCaptureFailureKeepsWorkerAlive(t *testing.T) {
	page := &fakePage{screenshotErr: errors.New("boom")}
	store := newFakeStore()
	tasks := make(chan queue.Task, 1)
	dead := make(chan int, 1)

	w := NewWorker(0, render.KindScreenshot, page, tasks, dead, &fakeResolver{store: store}, time.Second, discardLogger())

	task := queue.NewTask("default", "origin/request", render.Request{URL: "https://example.com", Kind: render.KindScreenshot, Format: render.FormatPNG})

	ok := w.handle(context.Background(), task)
	assert.True(t, ok, "a capture failure should not retire the worker")

	select {
	case url := <-task.Reply:
		assert.Nil(t, url)
	default:
		t.Fatal("expected a nil reply")
	}
}

func TestWorkerHandleStoreFailure(t *testing.T) {
	page := &fakePage{}
	store := newFakeStore()
	store.writeErr = errors.New("disk full")
	tasks := make(chan queue.Task, 1)
	dead := make(chan int, 1)

	w := NewWorker(0, render.KindScreenshot, page, tasks, dead, &fakeResolver{store: store}, time.Second, discardLogger())

	task := queue.NewTask("default", "origin/request", render.Request{URL: "https://example.com", Kind: render.KindScreenshot, Format: render.FormatPNG})

	ok := w.handle(context.Background(), task)
	assert.True(t, ok)

	select {
	case url := <-task.Reply:
		assert.Nil(t, url)
	default:
		t.Fatal("expected a nil reply")
	}
}
