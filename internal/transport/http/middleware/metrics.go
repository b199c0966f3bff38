package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type RequestRecorder interface {
	RequestStarted()
	RequestFinished(method, route string, status int, duration time.Duration)
}

// Metrics labels samples by route template so ids do not explode cardinality.
func Metrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		recorder.RequestStarted()
		c.Next()
		recorder.RequestFinished(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
