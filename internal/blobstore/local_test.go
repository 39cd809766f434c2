package blobstore

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GitaiQAQ/render-dispatch/internal/presign"
)

func TestLocalWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir(), "default", "token")

	ok, err := store.Exists(ctx, "ab/cd.png")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "ab/cd.png", []byte("pretend-png-bytes")))

	ok, err = store.Exists(ctx, "ab/cd.png")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Read(ctx, "ab/cd.png")
	require.NoError(t, err)
	assert.Equal(t, "pretend-png-bytes", string(data))
}

func TestLocalReadMissingReturnsErrNotExist(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir(), "default", "token")

	_, err := store.Read(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = store.Stat(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocalPresignReadEmbedsBucketAndVerifies(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir(), "default", "secret")
	require.NoError(t, store.Write(ctx, "ab/cd.png", []byte("x")))

	signed, err := store.PresignRead(ctx, "ab/cd.png", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/static/default/ab/cd.png", u.Path)

	credential, err := presign.Verify(u.Path, u.Query(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secret", credential)
}

func TestInfoFreshness(t *testing.T) {
	now := time.Now()
	info := Info{LastModified: now.Add(-30 * time.Second)}

	assert.True(t, info.Fresh(time.Minute, now))
	assert.False(t, info.Fresh(10*time.Second, now))
}
