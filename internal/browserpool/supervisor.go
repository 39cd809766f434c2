package browserpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/chromedp"

	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// Config names the shape of the worker pool (§4.C7): how many screenshot and
// PDF workers to keep alive, the chromedp launch options, and the
// per-navigation timeout every worker enforces.
type Config struct {
	Args              []string
	WindowWidth       int64
	WindowHeight      int64
	ScreenshotCount   int
	PDFCount          int
	NavigationTimeout time.Duration
}

// Supervisor owns the browser process and the full set of render workers. It
// keeps the pool's cardinality invariant — always exactly ScreenshotCount
// screenshot workers and PDFCount PDF workers alive — by replacing any
// worker that reports itself dead with a fresh page at the same id.
type Supervisor struct {
	cfg      Config
	resolver Resolver
	log      *slog.Logger

	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	screenshotCh chan queue.Task
	pdfCh        chan queue.Task
	dead         chan int

	mu      sync.Mutex
	cancels map[int]context.CancelFunc

	wg sync.WaitGroup
}

// NewSupervisor launches the headless browser described by cfg and returns a
// Supervisor ready to have Start called on it.
func NewSupervisor(cfg Config, resolver Resolver, log *slog.Logger) (*Supervisor, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(int(cfg.WindowWidth), int(cfg.WindowHeight)))
	for _, a := range cfg.Args {
		opts = append(opts, chromedp.Flag(a, true))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Supervisor{
		cfg:             cfg,
		resolver:        resolver,
		log:             log,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		screenshotCh:    make(chan queue.Task, cfg.ScreenshotCount),
		pdfCh:           make(chan queue.Task, cfg.PDFCount),
		dead:            make(chan int, cfg.ScreenshotCount+cfg.PDFCount),
		cancels:         make(map[int]context.CancelFunc),
	}, nil
}

// Start spawns the full worker pool, begins dispatching q's tasks to the
// right class of worker by kind, and runs the replace loop that keeps dead
// workers re-spawned. It returns once the initial pool is up; replacement
// and dispatch continue in the background until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context, q *queue.Queue) error {
	for id := 0; id < s.cfg.ScreenshotCount; id++ {
		if err := s.spawnWorker(ctx, id, render.KindScreenshot); err != nil {
			return fmt.Errorf("spawn screenshot worker %d: %w", id, err)
		}
	}
	for i := 0; i < s.cfg.PDFCount; i++ {
		id := s.cfg.ScreenshotCount + i
		if err := s.spawnWorker(ctx, id, render.KindPDF); err != nil {
			return fmt.Errorf("spawn pdf worker %d: %w", id, err)
		}
	}

	s.wg.Add(2)
	go s.dispatchLoop(ctx, q)
	go s.replaceLoop(ctx)

	return nil
}

func (s *Supervisor) kindForID(id int) render.Kind {
	if id < s.cfg.ScreenshotCount {
		return render.KindScreenshot
	}
	return render.KindPDF
}

// dispatchLoop routes every task off the shared queue to the channel its
// kind belongs to, so each worker class only ever sees its own work.
func (s *Supervisor) dispatchLoop(ctx context.Context, q *queue.Queue) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.Tasks():
			if !ok {
				return
			}
			dest := s.screenshotCh
			if t.Request.Kind == render.KindPDF {
				dest = s.pdfCh
			}
			select {
			case dest <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}

// replaceLoop waits for dead worker ids and respawns each at its original id
// and class, retrying page creation with backoff so a transient browser
// hiccup doesn't spin the loop.
func (s *Supervisor) replaceLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.dead:
			kind := s.kindForID(id)
			boff := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
			op := func() error {
				return s.spawnWorker(ctx, id, kind)
			}
			if err := backoff.Retry(op, boff); err != nil {
				s.log.Error("giving up respawning worker", "worker_id", id, "error", err)
			}
		}
	}
}

func (s *Supervisor) spawnWorker(ctx context.Context, id int, kind render.Kind) error {
	page, err := NewPage(s.browserCtx)
	if err != nil {
		return fmt.Errorf("new page for worker %d: %w", id, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	tasks := s.screenshotCh
	if kind == render.KindPDF {
		tasks = s.pdfCh
	}

	w := NewWorker(id, kind, page, tasks, s.dead, s.resolver, s.cfg.NavigationTimeout, s.log)
	go w.Run(workerCtx)
	return nil
}

// Shutdown stops every worker, closes the pages, and quits the browser. It
// does not wait for in-flight tasks to finish beyond ctx's deadline.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	s.browserCancel()
	s.allocatorCancel()
	return nil
}
