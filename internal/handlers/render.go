package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GitaiQAQ/render-dispatch/internal/fingerprint"
	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// admitBucket enforces the bucket's own rate limit, distinct from the
// process-global IP limit applied earlier in the middleware chain. It
// writes the 429 response itself and reports whether the caller may
// proceed.
func admitBucket(c *gin.Context, bucket *Bucket) bool {
	if bucket.Limiter == nil || bucket.Limiter.Allow(bucket.Name) {
		return true
	}
	retryAfter := bucket.Limiter.RetryAfter(bucket.Name)
	c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests for this bucket"})
	return false
}

type screenshotQuery struct {
	URL            string `form:"url" binding:"required"`
	Format         string `form:"format"`
	Quality        int    `form:"quality"`
	Width          int    `form:"width"`
	Height         int    `form:"height"`
	Scale          int    `form:"scale"`
	FullPage       bool   `form:"full_page"`
	OmitBackground bool   `form:"omit_background"`
	TTL            int    `form:"ttl"`
}

type pdfQuery struct {
	URL            string `form:"url" binding:"required"`
	Scale          int    `form:"scale"`
	OmitBackground bool   `form:"omit_background"`
	TTL            int    `form:"ttl"`
}

// Screenshot handles GET /screenshot/:bucket, rendering or serving a cached
// PNG/JPEG/WebP capture of a page.
func Screenshot(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket, ok := deps.bucket(c.Param("bucket"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bucket"})
			return
		}
		if !admitBucket(c, bucket) {
			return
		}

		var q screenshotQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := render.Request{
			URL:            q.URL,
			Kind:           render.KindScreenshot,
			Format:         render.Format(q.Format),
			Quality:        q.Quality,
			Width:          q.Width,
			Height:         q.Height,
			Scale:          q.Scale,
			FullPage:       q.FullPage,
			OmitBackground: q.OmitBackground,
			TTL:            q.TTL,
		}
		req = render.ApplyScreenshotDefaults(req, bucket.ScreenshotDefaults)

		serve(c, deps, bucket, req)
	}
}

// PDF handles GET /pdf/:bucket, rendering or serving a cached PDF capture of
// a page.
func PDF(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket, ok := deps.bucket(c.Param("bucket"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bucket"})
			return
		}
		if !admitBucket(c, bucket) {
			return
		}

		var q pdfQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := render.Request{
			URL:            q.URL,
			Kind:           render.KindPDF,
			Scale:          q.Scale,
			OmitBackground: q.OmitBackground,
			TTL:            q.TTL,
		}
		req = render.ApplyPDFDefaults(req, bucket.PDFDefaults)

		serve(c, deps, bucket, req)
	}
}

// serve is the shared cache-check/enqueue/await-reply flow for both
// artifact kinds: a fresh cached artifact redirects immediately, a stale or
// missing one is queued to a render worker and the caller waits for its
// presigned URL.
func serve(c *gin.Context, deps *Deps, bucket *Bucket, req render.Request) {
	ctx := c.Request.Context()

	originHash, requestHash, err := fingerprint.Key(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filename := originHash + "/" + requestHash
	path := filename + "." + req.Extension()

	if req.TTL > 0 {
		if info, err := bucket.Store.Stat(ctx, path); err == nil {
			if info.Fresh(time.Duration(req.TTL)*time.Second, time.Now()) {
				if url, err := bucket.Store.PresignRead(ctx, path, bucket.PresignTTL); err == nil {
					c.Redirect(http.StatusFound, url)
					return
				}
			}
		}
	}

	task := queue.NewTask(bucket.Name, filename, req)
	if err := deps.Queue.Push(task); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "render queue unavailable"})
		return
	}

	waitCtx := ctx
	if deps.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, deps.ReplyTimeout)
		defer cancel()
	}

	select {
	case url := <-task.Reply:
		if url == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
			return
		}
		c.Redirect(http.StatusFound, *url)
	case <-waitCtx.Done():
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "render timed out"})
	}
}
