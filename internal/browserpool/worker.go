package browserpool

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/GitaiQAQ/render-dispatch/internal/blobstore"
	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// Resolver supplies everything a worker needs to know about a bucket beyond
// what travels in the task itself: where to store bytes, how long a PDF
// worker should let a page settle before printing, and how long a presigned
// read link should stay valid.
type Resolver interface {
	Store(bucket string) (blobstore.Store, error)
	PDFSettle(bucket string) time.Duration
	PresignTTL(bucket string) time.Duration
}

// Worker owns exactly one browser page and repeatedly drains tasks of one
// kind from its class's task channel, which the supervisor feeds from the
// shared queue. A worker that hits a navigation timeout stops
// and reports itself dead so the supervisor can replace it with a fresh
// page; every other failure is answered with a nil reply and the worker
// keeps running.
type Worker struct {
	ID         int
	Kind       render.Kind
	NavTimeout time.Duration

	page     PageDriver
	tasks    <-chan queue.Task
	dead     chan<- int
	resolver Resolver
	log      *slog.Logger
}

// NewWorker builds a Worker bound to page, consuming from tasks, reporting
// its own id on dead if it must be replaced.
func NewWorker(id int, kind render.Kind, page PageDriver, tasks <-chan queue.Task, dead chan<- int, resolver Resolver, navTimeout time.Duration, log *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		Kind:       kind,
		NavTimeout: navTimeout,
		page:       page,
		tasks:      tasks,
		dead:       dead,
		resolver:   resolver,
		log:        log.With("worker_id", id, "worker_kind", string(kind)),
	}
}

// Run drains tasks until ctx is cancelled or the worker reports itself dead
// after a navigation timeout. It never panics: every capture/store error is
// swallowed into a nil reply so one bad request can't take the worker down.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.page.Close(closeCtx); err != nil {
			w.log.Warn("page close failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.tasks:
			if !ok {
				return
			}
			if w.Kind != kindOf(t.Request) {
				// misrouted task; should not happen given separate screenshot/pdf
				// channels upstream, but refuse rather than silently mishandle it.
				reply(t, nil)
				continue
			}
			if !w.handle(ctx, t) {
				return
			}
		}
	}
}

func kindOf(r render.Request) render.Kind {
	return r.Kind
}

// handle processes one task. It returns false when the worker must stop
// because its page is no longer trustworthy (navigation timeout).
func (w *Worker) handle(ctx context.Context, t queue.Task) bool {
	navCtx, cancel := context.WithTimeout(ctx, w.NavTimeout)
	err := w.page.Navigate(navCtx, t.Request.URL)
	cancel()
	if errors.Is(err, ErrNavigationTimeout) {
		w.log.Warn("navigation timeout, retiring worker", "url", t.Request.URL)
		reply(t, nil)
		select {
		case w.dead <- w.ID:
		case <-ctx.Done():
		}
		return false
	}
	if err != nil {
		w.log.Error("navigate failed", "url", t.Request.URL, "error", err)
		reply(t, nil)
		w.resetBlank(ctx)
		return true
	}

	data, err := w.capture(ctx, t)
	if err != nil {
		w.log.Error("capture failed", "url", t.Request.URL, "error", err)
		reply(t, nil)
		w.resetBlank(ctx)
		return true
	}

	url, err := w.store(ctx, t, data)
	if err != nil {
		w.log.Error("store failed", "bucket", t.Bucket, "error", err)
		reply(t, nil)
		w.resetBlank(ctx)
		return true
	}

	reply(t, &url)
	w.resetBlank(ctx)
	return true
}

func (w *Worker) capture(ctx context.Context, t queue.Task) ([]byte, error) {
	scale := float64(t.Request.Scale) / 10.0
	switch t.Request.Kind {
	case render.KindPDF:
		return w.page.PDF(ctx, PDFParams{
			Scale:           scale,
			PrintBackground: !t.Request.OmitBackground,
			SettleDuration:  w.resolver.PDFSettle(t.Bucket),
		})
	default:
		return w.page.Screenshot(ctx, ScreenshotParams{
			Width:          t.Request.Width,
			Height:         t.Request.Height,
			Scale:          scale,
			Format:         t.Request.Format,
			Quality:        t.Request.Quality,
			FullPage:       t.Request.FullPage,
			OmitBackground: t.Request.OmitBackground,
		})
	}
}

func (w *Worker) store(ctx context.Context, t queue.Task, data []byte) (string, error) {
	store, err := w.resolver.Store(t.Bucket)
	if err != nil {
		return "", err
	}
	path := t.Filename + "." + t.Request.Extension()
	if err := store.EnsureDir(ctx, filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := store.Write(ctx, path, data); err != nil {
		return "", err
	}
	return store.PresignRead(ctx, path, w.resolver.PresignTTL(t.Bucket))
}

// resetBlank returns the page to about:blank between tasks, per the
// teacher-worker's navigate-then-idle loop shape. Failure here is logged but
// not fatal; the next task's Navigate will simply start from whatever page
// is currently loaded.
func (w *Worker) resetBlank(ctx context.Context) {
	resetCtx, cancel := context.WithTimeout(ctx, w.NavTimeout)
	defer cancel()
	if err := w.page.Navigate(resetCtx, "about:blank"); err != nil {
		w.log.Warn("reset to blank failed", "error", err)
	}
}

// reply makes a best-effort, non-blocking delivery of url to the task's
// caller. The channel is buffered to size 1, so if nobody is listening
// anymore the send is simply dropped.
func reply(t queue.Task, url *string) {
	select {
	case t.Reply <- url:
	default:
	}
}
