package http

// Method identifies the HTTP request method. The zero value is Invalid so
// that an unrecognized token degrades to a queryable state instead of
// aborting the request.
type Method int

const (
	Invalid Method = iota
	Get
	Post
	Head
	Put
	Delete
	Options
	Patch
)

var methodNames = [...]string{
	Invalid: "INVALID",
	Get:     "GET",
	Post:    "POST",
	Head:    "HEAD",
	Put:     "PUT",
	Delete:  "DELETE",
	Options: "OPTIONS",
	Patch:   "PATCH",
}

// String returns the wire form of the method.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "INVALID"
	}
	return methodNames[m]
}

// MethodFromToken maps a request-line token to a Method. Unknown tokens map
// to Invalid.
func MethodFromToken(token string) Method {
	switch token {
	case "GET":
		return Get
	case "POST":
		return Post
	case "HEAD":
		return Head
	case "PUT":
		return Put
	case "DELETE":
		return Delete
	case "OPTIONS":
		return Options
	case "PATCH":
		return Patch
	default:
		return Invalid
	}
}

// Version identifies the HTTP protocol version of a request.
type Version int

const (
	VersionUnknown Version = iota
	Version10
	Version11
)

// String returns the wire form of the version.
func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return "HTTP/unknown"
	}
}
