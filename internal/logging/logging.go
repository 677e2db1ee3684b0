// Package logging writes single-line JSON log entries through the standard logger.
package logging

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogKV logs a structured JSON line with a level, message, and arbitrary fields.
func LogKV(level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"level": level,
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("logging: %s: %v", msg, err)
		return
	}
	log.Println(string(b))
}

// Error logs err under the "error" key.
func Error(msg string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogKV(LevelError, msg, fields)
}

// JSONLogger returns a Gin middleware that logs requests as single-line JSON.
func JSONLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		level := LevelInfo
		if status >= http.StatusInternalServerError || len(c.Errors) > 0 {
			level = LevelError
		}

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"route":      c.FullPath(),
			"query":      query,
			"status":     status,
			"latency_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":  c.ClientIP(),
			"bytes_in":   c.Request.ContentLength,
			"bytes_out":  c.Writer.Size(),
		}
		if userID, ok := c.Get("userID"); ok {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}

		LogKV(level, "request", fields)
	}
}
