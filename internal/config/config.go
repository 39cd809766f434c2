// Package config loads the server's JSON configuration file, creating it
// with sensible defaults on first run the same way the original project's
// lazy-initialized config did: if the file is missing, write the defaults
// out and use them, rather than failing startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GitaiQAQ/render-dispatch/internal/ratelimit"
	"github.com/GitaiQAQ/render-dispatch/internal/render"
)

// BrowserConfig describes how to launch and size the headless browser and
// how many of each worker class to run against it.
type BrowserConfig struct {
	Args              []string `json:"args"`
	WindowWidth       int64    `json:"window_width"`
	WindowHeight      int64    `json:"window_height"`
	ScreenshotWorkers int      `json:"screenshot_workers"`
	PDFWorkers        int      `json:"pdf_workers"`
	NavigationTimeout Duration `json:"navigation_timeout"`
}

// HTTPConfig describes the listening address and the process-global rate
// limiter applied to every request regardless of bucket.
type HTTPConfig struct {
	Listen       string           `json:"listen"`
	RateLimiting ratelimit.Config `json:"rate_limiting"`
}

// Duration is a time.Duration that marshals to/from JSON as a Go duration
// string ("10s", "1h") instead of an opaque integer of nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// BlobBackend names which storage implementation a bucket uses.
type BlobBackend string

const (
	BackendLocal BlobBackend = "local"
	BackendS3    BlobBackend = "s3"
)

// BlobConfig is a bucket's storage backend configuration. Only the fields
// relevant to Backend are populated; the rest are zero.
type BlobConfig struct {
	Backend   BlobBackend `json:"backend"`
	Root      string      `json:"root,omitempty"`      // local
	Endpoint  string      `json:"endpoint,omitempty"`   // s3
	Region    string      `json:"region,omitempty"`     // s3
	Bucket    string      `json:"bucket,omitempty"`     // s3
	AccessKey string      `json:"access_key,omitempty"` // s3
	SecretKey string      `json:"secret_key,omitempty"` // s3
}

// Bucket is one tenant's complete configuration: its access token, its
// rate limit, where its artifacts live, and the defaults applied to any
// request field its caller left unset.
type Bucket struct {
	AccessToken        string           `json:"access_token"`
	RateLimiting       ratelimit.Config `json:"rate_limiting"`
	Blob               BlobConfig       `json:"blob"`
	ScreenshotDefaults render.Defaults  `json:"screenshot_defaults"`
	PDFDefaults        render.Defaults  `json:"pdf_defaults"`
	PresignTTL         Duration         `json:"presign_ttl"`
}

// Config is the full server configuration, auto-created with defaults at
// the path given to Load on first run.
type Config struct {
	Browser BrowserConfig     `json:"browser"`
	HTTP    HTTPConfig        `json:"http"`
	Buckets map[string]Bucket `json:"buckets"`
}

// Load reads the config at path, creating it with Default() if it doesn't
// exist yet.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Default returns the out-of-the-box configuration: a single "default"
// bucket backed by local storage under ./static, a 100 req/s global limit,
// and a 15 req/min per-bucket limit, matching the defaults this service has
// always shipped with.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Args:              DefaultBrowserArgs(),
			WindowWidth:       1920,
			WindowHeight:      1080,
			ScreenshotWorkers: 4,
			PDFWorkers:        1,
			NavigationTimeout: Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{
			Listen: "0.0.0.0:8080",
			RateLimiting: ratelimit.Config{
				Type: ratelimit.QPS,
				N:    100,
			},
		},
		Buckets: map[string]Bucket{
			"default": {
				AccessToken: "change-me",
				RateLimiting: ratelimit.Config{
					Type: ratelimit.QPM,
					N:    15,
				},
				Blob: BlobConfig{
					Backend: BackendLocal,
					Root:    "./static",
				},
				ScreenshotDefaults: render.Defaults{
					Format:   render.FormatJPEG,
					Quality:  40,
					Width:    1920,
					Height:   1080,
					Scale:    5,
					FullPage: false,
					TTL:      60,
				},
				PDFDefaults: render.Defaults{
					Scale:         5,
					TTL:           60,
					SettleSeconds: 10,
				},
				PresignTTL: Duration(time.Hour),
			},
		},
	}
}

// DefaultBrowserArgs is the flag set every launched Chrome instance gets,
// tuned for running headless and unattended inside a container.
func DefaultBrowserArgs() []string {
	return []string{
		"disable-background-networking",
		"disable-background-timer-throttling",
		"disable-backgrounding-occluded-windows",
		"disable-breakpad",
		"disable-client-side-phishing-detection",
		"disable-component-extensions-with-background-pages",
		"disable-default-apps",
		"disable-dev-shm-usage",
		"disable-extensions",
		"disable-features=Translate,BackForwardCache,AcceptCHFrame,MediaRouter,OptimizationHints",
		"disable-hang-monitor",
		"disable-ipc-flooding-protection",
		"disable-popup-blocking",
		"disable-prompt-on-repost",
		"disable-renderer-backgrounding",
		"disable-sync",
		"force-color-profile=srgb",
		"metrics-recording-only",
		"no-first-run",
		"password-store=basic",
		"use-mock-keychain",
		"no-sandbox",
		"mute-audio",
		"hide-scrollbars",
		"no-zygote",
	}
}
