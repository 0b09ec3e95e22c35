package http

import (
	"bytes"
	"errors"
	"strings"
)

// Parser errors. A malformed request head is fatal to the connection;
// everything recoverable degrades inside the Request instead.
var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrHeadTooLarge         = errors.New("request head exceeds limit")
)

// MaxHeadBytes caps the request line plus headers before the parser gives
// up on the connection.
const MaxHeadBytes = 64 * 1024

type parsePhase int

const (
	phaseRequestLine parsePhase = iota
	phaseHeaders
	phaseBody
	phaseDone
)

// RequestParser incrementally consumes wire bytes and populates a Request
// through its public mutators. One parser instance serves one connection
// and is reset between pipelined messages. It never blocks: Feed reports
// whether the current message is complete and how many input bytes were
// consumed.
type RequestParser struct {
	req      *Request
	phase    parsePhase
	head     []byte
	bodyLeft int64
	headCb   func(*Request)
}

// NewRequestParser returns a parser bound to req.
func NewRequestParser(req *Request) *RequestParser {
	return &RequestParser{req: req}
}

// Request returns the request being populated.
func (p *RequestParser) Request() *Request { return p.req }

// SetHeadCallback installs a callback invoked once per message when the
// request line and headers are fully parsed, before any body byte is
// consumed. This is the hand-off point for switching a request into
// streaming delivery.
func (p *RequestParser) SetHeadCallback(cb func(*Request)) { p.headCb = cb }

// Reset rebinds the parser to a new request for the next message on the
// same connection.
func (p *RequestParser) Reset(req *Request) {
	p.req = req
	p.phase = phaseRequestLine
	p.head = p.head[:0]
	p.bodyLeft = 0
}

// Complete reports whether a full message has been parsed.
func (p *RequestParser) Complete() bool { return p.phase == phaseDone }

// Feed consumes data, returning how many bytes were used and whether the
// message is now complete. Bytes past the end of a complete message are
// left for the caller (pipelining).
func (p *RequestParser) Feed(data []byte) (consumed int, complete bool, err error) {
	for len(data) > 0 && p.phase != phaseDone {
		switch p.phase {
		case phaseRequestLine, phaseHeaders:
			n, err := p.feedHead(data)
			if err != nil {
				return consumed, false, err
			}
			consumed += n
			data = data[n:]
		case phaseBody:
			n := int64(len(data))
			if n > p.bodyLeft {
				n = p.bodyLeft
			}
			// In streaming mode a reader rejection already moved the
			// stream to Error; the parser keeps draining body bytes so
			// the connection stays in sync.
			if err := p.req.AppendToBody(data[:n]); err != nil && !p.req.IsStreamMode() {
				return consumed, false, err
			}
			p.bodyLeft -= n
			consumed += int(n)
			data = data[n:]
			if p.bodyLeft == 0 {
				p.finishBody()
			}
		}
	}
	return consumed, p.phase == phaseDone, nil
}

// feedHead buffers until a full line is available, then parses it.
func (p *RequestParser) feedHead(data []byte) (int, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		if len(p.head)+len(data) > MaxHeadBytes {
			return 0, ErrHeadTooLarge
		}
		p.head = append(p.head, data...)
		return len(data), nil
	}
	if len(p.head)+nl > MaxHeadBytes {
		return 0, ErrHeadTooLarge
	}
	line := data[:nl]
	if len(p.head) > 0 {
		p.head = append(p.head, line...)
		line = p.head
	}
	line = bytes.TrimSuffix(line, []byte{'\r'})

	var err error
	if p.phase == phaseRequestLine {
		err = p.parseRequestLine(string(line))
	} else {
		err = p.parseHeaderLine(string(line))
	}
	p.head = p.head[:0]
	return nl + 1, err
}

func (p *RequestParser) parseRequestLine(line string) error {
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return ErrMalformedRequestLine
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || target == "" {
		return ErrMalformedRequestLine
	}
	// Unknown methods degrade to Invalid; the dispatch collaborator
	// decides how to answer.
	p.req.SetMethodToken(method)

	if q := strings.IndexByte(target, '?'); q >= 0 {
		p.req.SetQuery(target[q+1:])
		target = target[:q]
	}
	p.req.SetPathEncoded(target)

	switch proto {
	case "HTTP/1.1":
		p.req.SetVersion(Version11)
	case "HTTP/1.0":
		p.req.SetVersion(Version10)
	default:
		p.req.SetVersion(VersionUnknown)
	}
	p.phase = phaseHeaders
	return nil
}

func (p *RequestParser) parseHeaderLine(line string) error {
	if line == "" {
		p.startBody()
		return nil
	}
	// A junk header line is dropped rather than killing the message.
	p.req.AddHeaderLine(line)
	return nil
}

func (p *RequestParser) startBody() {
	if p.headCb != nil {
		p.headCb(p.req)
	}
	length, has := p.req.ContentLengthHeader()
	if !has || length == 0 {
		p.phase = phaseDone
		if p.req.IsStreamMode() {
			p.req.StreamFinish()
		}
		return
	}
	p.bodyLeft = length
	p.req.ReserveBodySize(length)
	p.phase = phaseBody
}

func (p *RequestParser) finishBody() {
	p.phase = phaseDone
	if p.req.IsStreamMode() {
		p.req.StreamFinish()
	}
}
