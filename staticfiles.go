package dullahan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StaticFileServer serves files rooted at Root, computing a strong etag
// from a content hash and honoring If-None-Match, per spec.md §4.4/§6. It is a
// thin, out-of-scope collaborator (spec.md §1 names "static-file HTTP
// serving and MIME logic" as external) kept functional so the binary's
// non-websocket requests still resolve to something.
type StaticFileServer struct {
	Root string
}

// ServeResponse is a fully-formed HTTP response ready to write to a
// pending connection's stream.
type ServeResponse struct {
	StatusLine string
	Headers    map[string]string
	Body       []byte
}

// Serve resolves req against Root and returns the response to send,
// handling conditional GETs and MIME inference by file extension.
func (s *StaticFileServer) Serve(req *http.Request) ServeResponse {
	clean := path.Clean("/" + req.URL.Path)
	if clean == "/" {
		clean = "/index.html"
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, filepath.Clean(s.Root)+string(filepath.Separator)) {
		return errorResponse(403, "forbidden")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResponse(404, "not found")
		}
		if os.IsPermission(err) {
			return errorResponse(403, "forbidden")
		}
		return errorResponse(500, "internal error")
	}

	sum := sha256.Sum256(data)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`
	if inm := req.Header.Get("If-None-Match"); inm != "" && inm == etag {
		return ServeResponse{
			StatusLine: "HTTP/1.1 304 Not Modified",
			Headers:    map[string]string{"ETag": etag},
		}
	}

	ctype := mime.TypeByExtension(filepath.Ext(full))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	return ServeResponse{
		StatusLine: "HTTP/1.1 200 OK",
		Headers: map[string]string{
			"Content-Type":   ctype,
			"Content-Length": fmt.Sprint(len(data)),
			"ETag":           etag,
		},
		Body: data,
	}
}

func errorResponse(status int, msg string) ServeResponse {
	text := http.StatusText(status)
	if text == "" {
		text = msg
	}
	body := []byte(msg)
	return ServeResponse{
		StatusLine: fmt.Sprintf("HTTP/1.1 %d %s", status, text),
		Headers: map[string]string{
			"Content-Type":   "text/plain; charset=utf-8",
			"Content-Length": fmt.Sprint(len(body)),
		},
		Body: body,
	}
}

// Bytes renders the response in wire format, followed by "Connection: close"
// since every static response closes the socket (spec.md §4.4).
func (r ServeResponse) Bytes() []byte {
	var b strings.Builder
	b.WriteString(r.StatusLine)
	b.WriteString("\r\n")
	b.WriteString("Connection: close\r\n")
	for k, v := range r.Headers {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	out := []byte(b.String())
	out = append(out, r.Body...)
	return out
}
