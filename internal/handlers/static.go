package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GitaiQAQ/render-dispatch/internal/presign"
)

// Static serves GET /static/*filepath, gating access behind a presigned
// link. The signature is checked against every configured bucket's access
// token rather than just the one the path addresses, mirroring the shared
// access-control check this route has always used.
func Static(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rel := strings.TrimPrefix(c.Param("filepath"), "/")
		bucketName, objectPath, ok := splitFirstSegment(rel)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		bucket, ok := deps.bucket(bucketName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bucket"})
			return
		}

		requestPath := "/static/" + rel
		credential, err := presign.Verify(requestPath, c.Request.URL.Query(), time.Now())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if !credentialKnown(deps, credential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unrecognized credential"})
			return
		}

		data, err := bucket.Store.Read(c.Request.Context(), objectPath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		c.Data(http.StatusOK, contentTypeFor(objectPath), data)
	}
}

func splitFirstSegment(path string) (head, rest string, ok bool) {
	idx := strings.Index(path, "/")
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

func credentialKnown(deps *Deps, credential string) bool {
	for _, b := range deps.Buckets {
		if b.AccessToken == credential {
			return true
		}
	}
	return false
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	case strings.HasSuffix(path, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
