package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GitaiQAQ/render-dispatch/internal/presign"
)

func TestStaticServesWithValidSignature(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Write(context.Background(), "ab/cd.png", []byte("bytes")))

	deps, _ := newTestDeps(store)

	signedPath := "/static/default/ab/cd.png"
	signed := presign.Sign(signedPath, "token")
	qs, err := signed.ToQueryString()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, signedPath+"?"+qs, nil)
	c.Params = gin.Params{{Key: "filepath", Value: "/default/ab/cd.png"}}

	Static(deps)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bytes", w.Body.String())
}

func TestStaticRejectsBadSignature(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Write(context.Background(), "ab/cd.png", []byte("bytes")))
	deps, _ := newTestDeps(store)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/static/default/ab/cd.png?X-Amz-Algorithm=x", nil)
	c.Params = gin.Params{{Key: "filepath", Value: "/default/ab/cd.png"}}

	Static(deps)(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaticUnknownBucket(t *testing.T) {
	store := newMemStore()
	deps, _ := newTestDeps(store)

	signedPath := "/static/nope/ab/cd.png"
	signed := presign.Sign(signedPath, "token")
	qs, err := signed.ToQueryString()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, signedPath+"?"+qs, nil)
	c.Params = gin.Params{{Key: "filepath", Value: "/nope/ab/cd.png"}}

	Static(deps)(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
