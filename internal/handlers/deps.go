// Package handlers wires HTTP requests onto the render queue and blob
// stores: one handler per route, sharing a Deps value built once at startup.
package handlers

import (
	"log/slog"
	"time"

	"github.com/GitaiQAQ/render-dispatch/internal/blobstore"
	"github.com/GitaiQAQ/render-dispatch/internal/queue"
	"github.com/GitaiQAQ/render-dispatch/internal/ratelimit"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// Bucket is one tenant's resolved runtime configuration: its storage, its
// rate limiter, its access token, and the defaults applied to incoming
// requests that omit optional fields.
type Bucket struct {
	Name               string
	AccessToken        string
	Store              blobstore.Store
	Limiter            *ratelimit.Keyed
	ScreenshotDefaults render.Defaults
	PDFDefaults        render.Defaults
	PresignTTL         time.Duration
}

// Deps is the shared state every handler closes over.
type Deps struct {
	Buckets map[string]*Bucket
	Queue   *queue.Queue
	Log     *slog.Logger
	// ReplyTimeout bounds how long a handler waits on a worker's reply
	// before answering 504, so a stuck render never hangs a client forever.
	ReplyTimeout time.Duration
}

func (d *Deps) bucket(name string) (*Bucket, bool) {
	b, ok := d.Buckets[name]
	return b, ok
}
