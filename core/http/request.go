package http

import (
	"crypto/x509"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxDecompressSize bounds decompressed body output to defend
// against decompression-bomb amplification.
const DefaultMaxDecompressSize = 64 * 1024 * 1024

// ConnectionHandle is a non-owning reference to the connection a request
// arrived on. It only answers liveness queries and never extends the
// connection's lifetime.
type ConnectionHandle interface {
	Connected() bool
}

// Request is one in-flight HTTP request. A Request is created and mutated
// exclusively by the event loop owning its connection; the lazy caches
// below (parameters, content type, JSON) rely on that single-writer
// discipline and are not safe to race from other goroutines. Hand-off to
// another execution context must be explicit and happens only after
// parsing completes.
type Request struct {
	creation time.Time
	peer     net.Addr
	local    net.Addr
	peerCert *x509.Certificate
	conn     ConnectionHandle
	secure   bool

	method         Method
	previousMethod Method
	version        Version
	keepAlive      bool

	path               string
	originalPath       string
	pathEncode         bool
	matchedPathPattern string

	query            string
	parameters       map[string]string
	flagParsedParams bool

	headers map[string]string
	cookies map[string]string
	expect  string

	contentLengthHeader int64
	hasContentLength    bool
	realContentLength   int64

	contentType    ContentType
	contentTypeRaw string
	flagParsedCT   bool
	spillThreshold int64
	maxDecompress  int64

	body bodyStore

	jsonValue      any
	jsonErr        string
	flagParsedJSON bool

	session       any
	attributes    map[string]any
	routingParams []string

	streamStatus   StreamStatus
	streamReader   RequestStreamReader
	streamFinishCb func()
	streamFault    error
	streamPending  []byte
	streamCbFired  bool

	processingStarted bool
}

var requestPool = sync.Pool{
	New: func() any {
		return newRequest()
	},
}

func newRequest() *Request {
	return &Request{
		creation:   time.Now(),
		keepAlive:  true,
		pathEncode: true,
		headers:    make(map[string]string),
		cookies:    make(map[string]string),
	}
}

// NewRequest returns a fresh Request with its creation timestamp set.
func NewRequest() *Request {
	return newRequest()
}

// AcquireRequest takes a reset Request from the pool.
func AcquireRequest() *Request {
	r := requestPool.Get().(*Request)
	r.creation = time.Now()
	return r
}

// ReleaseRequest resets the request and returns it to the pool. The caller
// must not touch it afterwards.
func ReleaseRequest(r *Request) {
	r.Reset()
	requestPool.Put(r)
}

// Reset returns the request to its zero state for reuse. Maps keep their
// capacity.
func (r *Request) Reset() {
	r.creation = time.Time{}
	r.peer = nil
	r.local = nil
	r.peerCert = nil
	r.conn = nil
	r.secure = false
	r.method = Invalid
	r.previousMethod = Invalid
	r.version = VersionUnknown
	r.keepAlive = true
	r.path = ""
	r.originalPath = ""
	r.pathEncode = true
	r.matchedPathPattern = ""
	r.query = ""
	clear(r.parameters)
	r.flagParsedParams = false
	clear(r.headers)
	clear(r.cookies)
	r.expect = ""
	r.contentLengthHeader = 0
	r.hasContentLength = false
	r.realContentLength = 0
	r.contentType = CTNone
	r.contentTypeRaw = ""
	r.flagParsedCT = false
	r.spillThreshold = 0
	r.maxDecompress = 0
	r.body.reset()
	r.jsonValue = nil
	r.jsonErr = ""
	r.flagParsedJSON = false
	r.session = nil
	r.attributes = nil
	r.routingParams = nil
	r.QuitStreamMode()
	r.processingStarted = false
}

// CreationTime returns when the request object was created.
func (r *Request) CreationTime() time.Time { return r.creation }

// SetCreationTime is used by reuse paths that recycle a pooled request.
func (r *Request) SetCreationTime(t time.Time) { r.creation = t }

// PeerAddr returns the remote address of the connection.
func (r *Request) PeerAddr() net.Addr { return r.peer }

// LocalAddr returns the local address the connection arrived on.
func (r *Request) LocalAddr() net.Addr { return r.local }

// SetPeerAddr records the remote address.
func (r *Request) SetPeerAddr(a net.Addr) { r.peer = a }

// SetLocalAddr records the local address.
func (r *Request) SetLocalAddr(a net.Addr) { r.local = a }

// PeerCertificate returns the client certificate presented during the TLS
// handshake, nil on plaintext connections or when none was presented.
func (r *Request) PeerCertificate() *x509.Certificate { return r.peerCert }

// SetPeerCertificate records the client certificate.
func (r *Request) SetPeerCertificate(c *x509.Certificate) { r.peerCert = c }

// SetSecure marks the request as having arrived over TLS.
func (r *Request) SetSecure(secure bool) { r.secure = secure }

// IsOnSecureConnection reports whether the request arrived over TLS.
func (r *Request) IsOnSecureConnection() bool { return r.secure }

// SetConnection installs the weak back-reference to the owning connection.
func (r *Request) SetConnection(h ConnectionHandle) { r.conn = h }

// Connection returns the weak connection handle, which may be nil.
func (r *Request) Connection() ConnectionHandle { return r.conn }

// Connected reports whether the owning connection is still alive.
func (r *Request) Connected() bool {
	return r.conn != nil && r.conn.Connected()
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// SetMethod replaces the method, remembering the previous one. The stored
// previous method exists only so a HEAD rewritten internally as GET can
// still be recognized as HEAD.
func (r *Request) SetMethod(m Method) {
	r.previousMethod = r.method
	r.method = m
}

// SetMethodToken parses a request-line token. Unknown tokens degrade to
// Invalid and report false.
func (r *Request) SetMethodToken(token string) bool {
	m := MethodFromToken(token)
	r.previousMethod = Invalid
	r.method = m
	return m != Invalid
}

// IsHead reports whether the request was a HEAD on the wire, including a
// HEAD that was rewritten to GET for handler dispatch.
func (r *Request) IsHead() bool {
	return r.method == Head || (r.method == Get && r.previousMethod == Head)
}

// Version returns the protocol version.
func (r *Request) Version() Version { return r.version }

// SetVersion records the protocol version. HTTP/1.0 turns keep-alive off
// unless a Connection header later overrides it.
func (r *Request) SetVersion(v Version) {
	r.version = v
	if v == Version10 {
		r.keepAlive = false
	}
}

// KeepAlive reports whether the connection should persist after this
// request.
func (r *Request) KeepAlive() bool { return r.keepAlive }

// SetKeepAlive overrides the keep-alive default derived from the version.
func (r *Request) SetKeepAlive(on bool) { r.keepAlive = on }

// Path returns the decoded request path.
func (r *Request) Path() string { return r.path }

// SetPath sets an already-decoded path, clearing any stored original.
func (r *Request) SetPath(p string) {
	r.path = p
	r.originalPath = ""
}

// SetPathEncoded takes the wire-form path. When percent-decoding changes
// anything the encoded original is retained separately; otherwise the two
// accessors share one string and nothing is duplicated.
func (r *Request) SetPathEncoded(raw string) {
	if !strings.ContainsRune(raw, '%') {
		r.path = raw
		r.originalPath = ""
		return
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil || decoded == raw {
		// Invalid percent escapes degrade to the raw form.
		r.path = raw
		r.originalPath = ""
		return
	}
	r.path = decoded
	r.originalPath = raw
}

// OriginalPath returns the encoded wire form when the path needed decoding
// and the decoded path otherwise.
func (r *Request) OriginalPath() string {
	if r.originalPath == "" {
		return r.path
	}
	return r.originalPath
}

// SetPathEncode governs whether future re-encoding of the path is
// permitted.
func (r *Request) SetPathEncode(on bool) { r.pathEncode = on }

// PathEncode reports the re-encoding flag.
func (r *Request) PathEncode() bool { return r.pathEncode }

// MatchedPathPattern returns the route pattern recorded by the external
// router.
func (r *Request) MatchedPathPattern() string { return r.matchedPathPattern }

// SetMatchedPathPattern records the route pattern that matched.
func (r *Request) SetMatchedPathPattern(p string) { r.matchedPathPattern = p }

// Query returns the raw query string.
func (r *Request) Query() string { return r.query }

// SetQuery sets the raw query string.
func (r *Request) SetQuery(q string) { r.query = q }

// Parameters returns the lazily-parsed parameter map combining the query
// string and, for form-encoded bodies, body parameters. The map is computed
// at most once per request instance; callers must treat it as read-only.
func (r *Request) Parameters() map[string]string {
	r.parseParametersOnce()
	return r.parameters
}

// GetParameter returns one parameter value, "" when absent.
func (r *Request) GetParameter(key string) string {
	r.parseParametersOnce()
	return r.parameters[key]
}

// SetParameter pre-seeds a parameter and marks the map parsed, so later
// accessor calls do not rescan the query string.
func (r *Request) SetParameter(key, value string) {
	if r.parameters == nil {
		r.parameters = make(map[string]string)
	}
	r.flagParsedParams = true
	r.parameters[key] = value
}

func (r *Request) parseParametersOnce() {
	if r.flagParsedParams {
		return
	}
	r.flagParsedParams = true
	if r.parameters == nil {
		r.parameters = make(map[string]string)
	}
	parseFormEncoded(r.query, r.parameters)
	if r.ContentType() == CTApplicationXForm && !r.IsStreamMode() {
		parseFormEncoded(string(r.body.view()), r.parameters)
	}
}

// parseFormEncoded splits k=v pairs on '&'. Duplicate keys are
// last-write-wins; undecodable tokens are kept raw.
func parseFormEncoded(s string, into map[string]string) {
	for s != "" {
		pair := s
		if i := strings.IndexByte(s, '&'); i >= 0 {
			pair, s = s[:i], s[i+1:]
		} else {
			s = ""
		}
		if pair == "" {
			continue
		}
		key, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		into[key] = value
	}
}

// AddHeader stores a header, normalizing the key to lowercase.
func (r *Request) AddHeader(key, value string) {
	r.headers[strings.ToLower(key)] = value
}

// GetHeader returns a header value; the lookup key is case-folded first.
// Absent keys return "".
func (r *Request) GetHeader(key string) string {
	return r.headers[strings.ToLower(key)]
}

// RemoveHeader deletes a header, case-folding the key first.
func (r *Request) RemoveHeader(key string) {
	delete(r.headers, strings.ToLower(key))
}

// Headers exposes the lowercase-keyed header map. Read-only for callers.
func (r *Request) Headers() map[string]string { return r.headers }

// AddCookie stores a cookie. Cookie names are case-sensitive.
func (r *Request) AddCookie(key, value string) {
	r.cookies[key] = value
}

// GetCookie returns a cookie value, "" when absent.
func (r *Request) GetCookie(key string) string {
	return r.cookies[key]
}

// Cookies exposes the cookie map. Read-only for callers.
func (r *Request) Cookies() map[string]string { return r.cookies }

// Expect returns the value of the Expect header, "" when absent.
func (r *Request) Expect() string { return r.expect }

// AddHeaderLine ingests one raw "Key: value" wire line, applying the same
// side effects as parsed headers. Lines without a colon are rejected.
func (r *Request) AddHeaderLine(line string) bool {
	key, value, ok := strings.Cut(line, ":")
	if !ok || key == "" {
		return false
	}
	r.processWireHeader(strings.TrimSpace(key), strings.TrimSpace(value))
	return true
}

// processWireHeader stores a header arriving from the parser and applies
// the side effects tied to well-known fields: cookie jar population,
// declared content length, expect capture and keep-alive overrides.
func (r *Request) processWireHeader(key, value string) {
	lower := strings.ToLower(key)
	switch lower {
	case "cookie":
		parseCookieHeader(value, r.cookies)
		return
	case "content-length":
		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && n >= 0 {
			r.contentLengthHeader = n
			r.hasContentLength = true
		}
	case "expect":
		r.expect = value
	case "connection":
		switch strings.ToLower(value) {
		case "close":
			r.keepAlive = false
		case "keep-alive":
			r.keepAlive = true
		}
	}
	r.headers[lower] = value
}

func parseCookieHeader(value string, into map[string]string) {
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, _ := strings.Cut(part, "=")
		into[name] = val
	}
}

// ContentLengthHeader returns the declared Content-Length and whether one
// was present and parsable.
func (r *Request) ContentLengthHeader() (int64, bool) {
	return r.contentLengthHeader, r.hasContentLength
}

// RealContentLength returns the number of body bytes actually received,
// which may exceed the declared value under chunked transfer.
func (r *Request) RealContentLength() int64 { return r.realContentLength }

// ContentType resolves the body media type from the content-type header on
// first access and caches it.
func (r *Request) ContentType() ContentType {
	r.parseContentTypeOnce()
	return r.contentType
}

// ContentTypeString returns the verbatim content-type header value the
// resolution was based on.
func (r *Request) ContentTypeString() string {
	r.parseContentTypeOnce()
	return r.contentTypeRaw
}

func (r *Request) parseContentTypeOnce() {
	if r.flagParsedCT {
		return
	}
	r.flagParsedCT = true
	raw := r.headers["content-type"]
	if raw == "" {
		r.contentType = CTNone
		return
	}
	base := raw
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		base = raw[:i]
	}
	ct := parseContentType(strings.TrimSpace(base))
	if ct == CTNone {
		ct = CTCustom
	}
	r.contentType = ct
	r.contentTypeRaw = raw
}

// SetContentTypeCode forces the resolved content type, deriving the raw
// string from the canonical MIME form.
func (r *Request) SetContentTypeCode(ct ContentType) {
	r.flagParsedCT = true
	r.contentType = ct
	r.contentTypeRaw = ct.Mime()
}

// SetCustomContentTypeString installs a caller-supplied content type. A
// leading "content-type:" header prefix is recognized case-insensitively
// and stripped, as is a trailing CRLF.
func (r *Request) SetCustomContentTypeString(s string) {
	r.flagParsedCT = true
	r.contentType = CTNone
	const prefix = "content-type:"
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = strings.TrimPrefix(s[len(prefix):], " ")
	}
	s = strings.TrimSuffix(s, "\r\n")
	r.contentTypeRaw = s
}

// AppendToBody accumulates body bytes. In streaming mode the bytes are
// routed to the attached reader instead of the buffered store; either way
// the real content length advances.
func (r *Request) AppendToBody(data []byte) error {
	r.realContentLength += int64(len(data))
	if r.IsStreamMode() {
		if r.streamStatus != StreamOpen {
			return nil
		}
		if r.streamReader == nil {
			r.streamPending = append(r.streamPending, data...)
			return nil
		}
		if err := r.streamReader.OnStreamData(data); err != nil {
			r.StreamError(err)
			return err
		}
		return nil
	}
	return r.body.append(data, r.spillThreshold)
}

// ReserveBodySize hints the expected body size so the in-memory buffer can
// grow once. Not a correctness requirement.
func (r *Request) ReserveBodySize(n int64) {
	r.body.reserve(n)
}

// SetBody replaces the buffered body.
func (r *Request) SetBody(data []byte) {
	r.body.set(data)
}

// SetSpillThreshold overrides the in-memory body bound above which the
// store spills to a temporary file.
func (r *Request) SetSpillThreshold(n int64) { r.spillThreshold = n }

// BodyView returns the buffered body as one contiguous slice, regardless
// of which backing holds it. Empty while in streaming mode, because the
// bytes went to the reader instead.
func (r *Request) BodyView() []byte {
	if r.IsStreamMode() {
		return nil
	}
	return r.body.view()
}

// BodyLength returns the buffered body length, 0 while streaming.
func (r *Request) BodyLength() int64 {
	if r.IsStreamMode() {
		return 0
	}
	return r.body.len()
}

// JSONObject lazily parses the body as JSON on first access. The result is
// cached, including the no-JSON case; parse failure is recorded and
// retrievable via JSONError instead of being returned.
func (r *Request) JSONObject() any {
	r.parseJSONOnce()
	return r.jsonValue
}

// JSONError returns the recorded JSON parse failure, "" when parsing
// succeeded or was never applicable.
func (r *Request) JSONError() string {
	r.parseJSONOnce()
	return r.jsonErr
}

func (r *Request) parseJSONOnce() {
	if r.flagParsedJSON {
		return
	}
	r.flagParsedJSON = true
	body := r.BodyView()
	if len(body) == 0 {
		r.jsonErr = "empty body"
		return
	}
	ct := r.ContentType()
	if ct != CTApplicationJSON && body[0] != '{' && body[0] != '[' {
		r.jsonErr = "content type is not application/json"
		return
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		r.jsonErr = err.Error()
		return
	}
	r.jsonValue = v
}

// Session returns the opaque session handle installed by an external
// collaborator.
func (r *Request) Session() any { return r.session }

// SetSession installs the session handle.
func (r *Request) SetSession(s any) { r.session = s }

// Attributes returns the per-request attribute store, creating it on first
// access.
func (r *Request) Attributes() map[string]any {
	if r.attributes == nil {
		r.attributes = make(map[string]any)
	}
	return r.attributes
}

// RoutingParameters returns the ordered parameters recorded by the
// external router.
func (r *Request) RoutingParameters() []string { return r.routingParams }

// SetRoutingParameters records router-extracted parameters.
func (r *Request) SetRoutingParameters(params []string) { r.routingParams = params }

// StartProcessing marks the request as dispatched. Guards against double
// dispatch.
func (r *Request) StartProcessing() { r.processingStarted = true }

// IsProcessingStarted reports whether dispatch already happened.
func (r *Request) IsProcessingStarted() bool { return r.processingStarted }
