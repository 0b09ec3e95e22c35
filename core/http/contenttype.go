package http

import "strings"

// ContentType is the resolved media type of a request body.
type ContentType int

const (
	CTNone ContentType = iota
	CTTextPlain
	CTTextHTML
	CTTextCSS
	CTApplicationJSON
	CTApplicationXForm
	CTApplicationXML
	CTApplicationOctetStream
	CTMultipartFormData
	// CTCustom marks a present but unrecognized content type; the raw
	// string is preserved verbatim alongside it.
	CTCustom
)

var contentTypeMimes = map[ContentType]string{
	CTTextPlain:              "text/plain",
	CTTextHTML:               "text/html",
	CTTextCSS:                "text/css",
	CTApplicationJSON:        "application/json",
	CTApplicationXForm:       "application/x-www-form-urlencoded",
	CTApplicationXML:         "application/xml",
	CTApplicationOctetStream: "application/octet-stream",
	CTMultipartFormData:      "multipart/form-data",
}

// Mime returns the canonical MIME string for the content type, or "" when
// the type has no fixed representation (none or custom).
func (ct ContentType) Mime() string {
	return contentTypeMimes[ct]
}

// parseContentType matches a media type with any ";"-delimited parameter
// suffix already stripped. Unmatched types return CTNone; the caller decides
// whether that means absent or custom.
func parseContentType(mime string) ContentType {
	switch strings.ToLower(mime) {
	case "text/plain":
		return CTTextPlain
	case "text/html":
		return CTTextHTML
	case "text/css":
		return CTTextCSS
	case "application/json":
		return CTApplicationJSON
	case "application/x-www-form-urlencoded":
		return CTApplicationXForm
	case "application/xml", "text/xml":
		return CTApplicationXML
	case "application/octet-stream":
		return CTApplicationOctetStream
	case "multipart/form-data":
		return CTMultipartFormData
	default:
		return CTNone
	}
}
