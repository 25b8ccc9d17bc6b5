package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AccessLog returns gin middleware that writes one line per request through
// the shared logrus instance. The formatter already prefixes timestamp, level
// and caller, so the line carries only the request facts; the level follows
// the response status.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := fmt.Sprintf("%s %s %d %s %s",
			c.Request.Method,
			c.Request.URL.RequestURI(),
			status,
			time.Since(start).Round(time.Millisecond),
			c.ClientIP(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			line += " " + errs
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error(line)
		case status >= http.StatusBadRequest:
			log.Warn(line)
		default:
			log.Info(line)
		}
	}
}

// Recovery converts handler panics into plain 500 responses, logging the
// panic value and stack instead of writing them to the client.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorf("panic handling %s %s: %v\n%s",
			c.Request.Method, c.Request.URL.Path, recovered, debug.Stack())
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
