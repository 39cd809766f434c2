package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GitaiQAQ/render-dispatch/internal/procstats"
)

// Stats handles GET /stats, rendering the current process tree as plain
// text for operators to eyeball worker health without a separate tool.
func Stats(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, err := procstats.Tree(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, tree)
	}
}
