package edgecache

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Sternrassler/html-edge-cache/pkg/cache"
	"github.com/Sternrassler/html-edge-cache/pkg/origin"
)

// respond writes the final response. length is -1 when unknown.
func (e *Engine) respond(w http.ResponseWriter, rs *requestState, statusCode int, header http.Header, body io.Reader, length int64, layer cache.Layer) {
	dst := w.Header()
	origin.CopyHeader(dst, header)
	if length >= 0 {
		dst.Set("Content-Length", strconv.FormatInt(length, 10))
	}

	if rs.cacheableGET() && statusCode == http.StatusOK {
		dst.Set(cache.StatusHeader, rs.status.String())
		if rs.versionRead && rs.versionErr == nil {
			dst.Set(cache.VersionHeader, strconv.FormatInt(rs.version, 10))
		}
		if rs.platformHit {
			dst.Set(PlatformStatusHeader, "HIT")
		}
		if layer == cache.LayerLocal {
			dst.Set(LayerHeader, string(layer))
		}
	}

	w.WriteHeader(statusCode)
	if rs.r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		rs.logger.Debug().Err(err).Msg("Client went away while writing response")
	}
}
