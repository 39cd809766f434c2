package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GitaiQAQ/render-dispatch/internal/presign"
)

// Local is a filesystem-backed Store rooted at one directory per bucket.
// Writes go through a temp-file-then-rename so readers never observe a
// partially written artifact (§4.C4's atomicity requirement).
type Local struct {
	root        string
	bucket      string
	accessToken string
}

// NewLocal returns a Local store rooted at root for the named bucket,
// signing presigned URLs with accessToken (the owning bucket's preshared
// token). bucket is embedded in every presigned path since the static
// file-serving route is mounted once across all buckets, not per bucket.
func NewLocal(root, bucket, accessToken string) *Local {
	return &Local{root: root, bucket: bucket, accessToken: accessToken}
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) Stat(_ context.Context, path string) (Info, error) {
	fi, err := os.Stat(l.resolve(path))
	if os.IsNotExist(err) {
		return Info{}, ErrNotExist
	}
	if err != nil {
		return Info{}, err
	}
	return Info{LastModified: fi.ModTime(), Size: fi.Size()}, nil
}

func (l *Local) Write(_ context.Context, path string, data []byte) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (l *Local) Read(_ context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(l.resolve(path))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	return b, err
}

func (l *Local) EnsureDir(_ context.Context, prefix string) error {
	return os.MkdirAll(l.resolve(prefix), 0o755)
}

// PresignRead synthesizes a presigned URL against the path exactly as stored
// under the static file-serving route, e.g. "/static/<bucket>/<path>".
func (l *Local) PresignRead(_ context.Context, path string, _ time.Duration) (string, error) {
	return presign.Sign("/static/"+l.bucket+"/"+path, l.accessToken).ToURL()
}
