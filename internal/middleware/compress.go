package middleware

import (
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

type brotliWriter struct {
	gin.ResponseWriter
	bw *brotli.Writer
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	return w.bw.Write(data)
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.bw.Write([]byte(s))
}

// Brotli compresses responses for clients that accept it. Streaming
// protocols are passed through untouched: SSE needs immediate flushes and a
// WebSocket handshake fails if the response writer is wrapped.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") ||
			strings.Contains(c.GetHeader("Accept"), "text/event-stream") ||
			!acceptsBrotli(c) {
			c.Next()
			return
		}

		c.Header("Content-Encoding", "br")
		c.Header("Vary", "Accept-Encoding")

		bw := brotli.NewWriter(c.Writer)
		c.Writer = &brotliWriter{ResponseWriter: c.Writer, bw: bw}
		defer bw.Close()

		c.Next()
	}
}

func acceptsBrotli(c *gin.Context) bool {
	for _, enc := range strings.Split(c.GetHeader("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
