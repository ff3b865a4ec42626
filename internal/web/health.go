package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealth reports liveness.
func HandleHealth(contextGin *gin.Context) {
	contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
}
