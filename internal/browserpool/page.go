// Package browserpool implements the render worker (§4.C6) and the pool
// supervisor that keeps N+M of them alive (§4.C7). Each worker owns exactly
// one browser page/tab and is the only goroutine allowed to drive it; all
// the concurrency in this service comes from having many workers, each with
// its own page.
package browserpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// ErrNavigationTimeout marks a navigation failure that should trigger worker
// replacement (§4.C6) rather than a simple reply-nil-and-continue.
var ErrNavigationTimeout = errors.New("browserpool: navigation timeout")

// ScreenshotParams is the capture-time configuration derived from a
// render.Request for a screenshot task.
type ScreenshotParams struct {
	Width          int
	Height         int
	Scale          float64 // request.Scale / 10.0
	Format         render.Format
	Quality        int
	FullPage       bool
	OmitBackground bool
}

// PDFParams is the capture-time configuration for a PDF task.
type PDFParams struct {
	Scale           float64 // request.Scale / 10.0
	PrintBackground bool
	SettleDuration  time.Duration
}

// PageDriver is the minimal surface a worker needs from a browser tab. It
// exists so tests can substitute a fake without a real Chrome binary; the
// only production implementation is chromedpPage.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context, p ScreenshotParams) ([]byte, error)
	PDF(ctx context.Context, p PDFParams) ([]byte, error)
	Close(ctx context.Context) error
}

// chromedpPage drives one chromedp tab context.
type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage creates a fresh blank tab under browserCtx (the allocator/browser
// context from the supervisor). Navigate calls on it are bounded by the
// deadline of the context each call is given.
func NewPage(browserCtx context.Context) (PageDriver, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("create blank page: %w", err)
	}
	return &chromedpPage{ctx: tabCtx, cancel: cancel}, nil
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(navCtx, chromedp.Navigate(url))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ErrNavigationTimeout
	}
}

func (p *chromedpPage) Screenshot(ctx context.Context, sp ScreenshotParams) ([]byte, error) {
	var buf []byte
	format := page.CaptureScreenshotFormatPng
	switch sp.Format {
	case render.FormatJPEG:
		format = page.CaptureScreenshotFormatJpeg
	case render.FormatWebP:
		format = page.CaptureScreenshotFormatWebp
	}

	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(int64(sp.Width), int64(sp.Height), 2.0, false),
	}
	if sp.OmitBackground {
		actions = append(actions, emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}))
	}
	actions = append(actions, chromedp.ActionFunc(func(actionCtx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(format).WithCaptureBeyondViewport(sp.FullPage)
		if sp.Format == render.FormatJPEG || sp.Format == render.FormatWebP {
			params = params.WithQuality(int64(sp.Quality))
		}
		clip := &page.Viewport{
			X: 0, Y: 0,
			Width:  float64(sp.Width),
			Height: float64(sp.Height),
			Scale:  sp.Scale,
		}
		params = params.WithClip(clip)
		data, err := params.Do(actionCtx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if sp.OmitBackground {
		actions = append(actions, emulation.SetDefaultBackgroundColorOverride())
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromedpPage) PDF(ctx context.Context, pp PDFParams) ([]byte, error) {
	if pp.SettleDuration > 0 {
		select {
		case <-time.After(pp.SettleDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var buf []byte
	action := chromedp.ActionFunc(func(actionCtx context.Context) error {
		data, err := page.PrintToPDF().
			WithScale(pp.Scale).
			WithPrintBackground(pp.PrintBackground).
			Do(actionCtx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	})

	if err := chromedp.Run(ctx, action); err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return buf, nil
}

func (p *chromedpPage) Close(ctx context.Context) error {
	defer p.cancel()
	return chromedp.Cancel(p.ctx)
}
