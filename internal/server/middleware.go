package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"erdlive/internal/document"
	"erdlive/internal/generators"
	"erdlive/internal/graph"
	"erdlive/internal/transform"
)

// errBadRequest marks request bodies that could not be bound.
var errBadRequest = errors.New("invalid request body")

// statusFor maps a handler error to its HTTP status.
func statusFor(err error) int {
	var diag *document.Diagnostic
	switch {
	case errors.As(err, &diag),
		errors.Is(err, document.ErrEmptyDocument),
		errors.Is(err, transform.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrTransformInProgress),
		errors.Is(err, graph.ErrNothingToUndo),
		errors.Is(err, graph.ErrNothingToRedo):
		return http.StatusConflict
	case errors.Is(err, graph.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, generators.ErrUnknownFormat),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorHandler answers with the last error a handler attached to the context.
func ErrorHandler(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := statusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			log.WithError(err).Error("unhandled request error")
			message = "An unexpected internal server error occurred."
		}

		if c.Writer.Written() {
			log.WithError(err).Warn("response already written before handling error")
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"error": message})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
