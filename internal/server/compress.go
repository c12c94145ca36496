package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

const brotliDynamicQuality = 4

var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// compressMiddleware applies brotli or gzip compression to responses when
// the client supports it, preferring brotli. Streaming ndjson handlers
// flush through the compressor as they write, so clients still see
// incremental chunks rather than one buffered blob.
func compressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ae := r.Header.Get("Accept-Encoding")

		var encoding string
		switch {
		case acceptsEncoding(ae, "br"):
			encoding = "br"
		case acceptsEncoding(ae, "gzip"):
			encoding = "gzip"
		default:
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.Close()
		next.ServeHTTP(cw, r)
	})
}

func acceptsEncoding(header, encoding string) bool {
	for _, part := range strings.Split(header, ",") {
		if enc, _, _ := strings.Cut(strings.TrimSpace(part), ";"); strings.TrimSpace(enc) == encoding {
			return true
		}
	}
	return false
}

// compressWriter wraps http.ResponseWriter, lazily deciding whether to
// compress once headers are written.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	writer      io.WriteCloser
	started     bool
	compressing bool
}

func (cw *compressWriter) WriteHeader(code int) {
	if cw.started {
		return
	}
	cw.started = true

	if cw.Header().Get("Content-Encoding") != "" || code == http.StatusNoContent || code == http.StatusNotModified {
		cw.ResponseWriter.WriteHeader(code)
		return
	}

	cw.compressing = true
	cw.Header().Set("Content-Encoding", cw.encoding)
	cw.Header().Del("Content-Length")
	cw.Header().Add("Vary", "Accept-Encoding")

	switch cw.encoding {
	case "br":
		cw.writer = brotli.NewWriterLevel(cw.ResponseWriter, brotliDynamicQuality)
	case "gzip":
		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(cw.ResponseWriter)
		cw.writer = gz
	}

	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if !cw.started {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.compressing {
		return cw.writer.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *compressWriter) Flush() {
	if cw.compressing {
		if f, ok := cw.writer.(interface{ Flush() error }); ok {
			f.Flush()
		}
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressWriter) Close() {
	if !cw.compressing || cw.writer == nil {
		return
	}
	cw.writer.Close()
	if cw.encoding == "gzip" {
		gzipWriterPool.Put(cw.writer)
	}
	cw.writer = nil
}
