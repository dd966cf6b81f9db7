package middleware

import (
	"regexp"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Compression gzips JSON responses. The given stream paths are matched exactly
// and left uncompressed so frames are not buffered.
func Compression(streamPaths ...string) gin.HandlerFunc {
	patterns := make([]string, 0, len(streamPaths))
	for _, p := range streamPaths {
		patterns = append(patterns, "^"+regexp.QuoteMeta(p)+"$")
	}
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs(patterns))
}
