// Package render defines the shapes carried from an HTTP request through the
// task queue to a browser worker: the parsed RenderRequest and the per-bucket
// defaults used to fill in anything the caller omitted.
package render

import (
	"fmt"
	"net/url"
)

// Kind is the artifact family a RenderRequest asks for.
type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindPDF        Kind = "pdf"
)

// Format is the raster encoding for a screenshot. Unused for PDF requests.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Extension returns the artifact file extension for this request's kind/format.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatWebP:
		return "webp"
	default:
		return "png"
	}
}

// Request is the parsed, validated form of one render call. It is the single
// value both the fingerprint and the worker operate over.
type Request struct {
	URL    string
	Kind   Kind
	Format Format // screenshot only

	Quality int // 1..100, screenshot only
	Width   int // pixels, screenshot only
	Height  int // pixels, screenshot only

	Scale          int  // tenths; effective device-scale = Scale/10.0
	FullPage       bool // screenshot only
	OmitBackground bool

	TTL int // seconds; 0 means "no cache reuse", not serialized into the key
}

// Extension returns the stored artifact's file suffix for this request.
func (r Request) Extension() string {
	if r.Kind == KindPDF {
		return "pdf"
	}
	return r.Format.Extension()
}

// Origin returns the scheme://host[:port] partition prefix for r.URL. Two
// requests against different origins never share a cache-key prefix.
func (r Request) Origin() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", r.URL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Defaults holds the per-bucket fallback values applied to unset optional
// fields of an incoming request, per §6 of the configuration contract.
type Defaults struct {
	Format         Format
	Quality        int
	Width          int
	Height         int
	Scale          int
	FullPage       bool
	OmitBackground bool
	TTL            int
	// SettleSeconds is PDF-only: how long the worker waits for late scripts
	// before calling PrintToPDF. Configurable per §9's "make this configurable"
	// note; zero falls back to 10s in the server's bucket resolver.
	SettleSeconds int
}

// ApplyScreenshotDefaults fills any zero-valued optional screenshot field from d.
func ApplyScreenshotDefaults(r Request, d Defaults) Request {
	if r.Format == "" {
		r.Format = d.Format
	}
	if r.Quality == 0 {
		r.Quality = d.Quality
	}
	if r.Width == 0 {
		r.Width = d.Width
	}
	if r.Height == 0 {
		r.Height = d.Height
	}
	if r.Scale == 0 {
		r.Scale = d.Scale
	}
	if r.TTL == 0 {
		r.TTL = d.TTL
	}
	return r
}

// ApplyPDFDefaults fills any zero-valued optional PDF field from d.
func ApplyPDFDefaults(r Request, d Defaults) Request {
	if r.Scale == 0 {
		r.Scale = d.Scale
	}
	if r.TTL == 0 {
		r.TTL = d.TTL
	}
	return r
}
