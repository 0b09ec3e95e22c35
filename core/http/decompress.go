package http

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"
)

// DecompressStatus is the four-valued outcome of an explicit body
// decompression request.
type DecompressStatus int

const (
	// DecompressOk means the body store now holds the decoded bytes.
	DecompressOk DecompressStatus = iota
	// DecompressTooLarge means the decoded output would exceed the
	// configured bound; the compressed body is left untouched.
	DecompressTooLarge
	// DecompressError means the compressed input is malformed.
	DecompressError
	// DecompressNotSupported means no decoder is available for the
	// negotiated encoding, or the request is in streaming mode and has no
	// buffered body to decode.
	DecompressNotSupported
)

func (s DecompressStatus) String() string {
	switch s {
	case DecompressOk:
		return "ok"
	case DecompressTooLarge:
		return "too large"
	case DecompressError:
		return "decompress error"
	case DecompressNotSupported:
		return "not supported"
	default:
		return "unknown"
	}
}

// SetMaxDecompressSize overrides the decoded-output bound for this request.
func (r *Request) SetMaxDecompressSize(n int64) { r.maxDecompress = n }

// DecompressBody decodes the buffered body in place according to the
// Content-Encoding header. It fails closed: the body is replaced only on a
// full, in-bounds decode, and the original compressed bytes survive every
// failure path. Unavailable in streaming mode since no buffered body
// exists.
func (r *Request) DecompressBody() DecompressStatus {
	if r.IsStreamMode() {
		return DecompressNotSupported
	}
	encoding := strings.ToLower(strings.TrimSpace(r.GetHeader("content-encoding")))
	switch encoding {
	case "", "identity":
		return DecompressOk
	case "gzip":
		return r.decompressWith(func(src io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(src)
		})
	case "deflate":
		return r.decompressWith(func(src io.Reader) (io.ReadCloser, error) {
			return flate.NewReader(src), nil
		})
	default:
		return DecompressNotSupported
	}
}

func (r *Request) decompressWith(open func(io.Reader) (io.ReadCloser, error)) DecompressStatus {
	max := r.maxDecompress
	if max <= 0 {
		max = DefaultMaxDecompressSize
	}
	dec, err := open(bytes.NewReader(r.body.view()))
	if err != nil {
		return DecompressError
	}
	defer dec.Close()

	var out bytes.Buffer
	// Read one byte past the bound to distinguish "exactly at the limit"
	// from "over it".
	n, err := io.Copy(&out, io.LimitReader(dec, max+1))
	if err != nil {
		return DecompressError
	}
	if n > max {
		return DecompressTooLarge
	}
	// Probe for trailing garbage after a clean EOF.
	if _, err := dec.Read(make([]byte, 1)); err != io.EOF {
		return DecompressError
	}
	r.body.set(out.Bytes())
	r.RemoveHeader("content-encoding")
	return DecompressOk
}
