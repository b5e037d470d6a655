package transport

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodingTransport undoes the content encodings advertised by the
// browser-like Accept-Encoding header. Setting that header by hand turns
// off net/http's transparent gzip, so every encoding is handled here.
type decodingTransport struct {
	inner http.RoundTripper
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b decodedBody) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return res, nil
	}
	if req.Method == http.MethodHead || res.Body == nil || res.Body == http.NoBody {
		res.Header.Del("Content-Encoding")
		return res, nil
	}

	var reader io.Reader
	closers := []io.Closer{res.Body}
	switch encoding {
	case "br":
		reader = brotli.NewReader(res.Body)
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(res.Body)
		if err != nil {
			res.Body.Close()
			return nil, err
		}
		reader = gz
		closers = append([]io.Closer{gz}, closers...)
	case "deflate":
		fl := flate.NewReader(res.Body)
		reader = fl
		closers = append([]io.Closer{fl}, closers...)
	default:
		return res, nil
	}

	res.Body = decodedBody{Reader: reader, closers: closers}
	res.Header.Del("Content-Encoding")
	res.Header.Del("Content-Length")
	res.ContentLength = -1
	res.Uncompressed = true
	return res, nil
}
