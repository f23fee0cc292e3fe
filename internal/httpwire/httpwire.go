// Package httpwire implements the pure wire-parsing helpers used by
// the proxy: extracting method, Host, and
// absolute-URL target from a request, and status plus Content-Length
// from a response. No I/O happens here.
package httpwire

import (
	"bufio"
	"bytes"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/avdonina/cacheproxy/internal/config"
)

// Request is the result of parsing a client request line plus headers.
type Request struct {
	Method string
	Host   string // hostname only
	Port   string // "80", "443", or an explicit port from the Host header
	Scheme string
	Raw    []byte // the full original request bytes, forwarded verbatim
}

// ParseRequest extracts method, absolute-URL scheme/host/port from buf.
// A relative target is accepted when a Host header is present; a Host
// header, when present, supplies host and port. It returns a
// ParseError-wrapped error if the request line is malformed, or if the
// target is not an absolute URL and the Host header is missing.
func ParseRequest(buf []byte) (Request, error) {
	reader := bufio.NewReader(bytes.NewReader(buf))
	line, err := reader.ReadString('\n')
	if err != nil {
		return Request{}, errors.Wrap(config.ErrParse, "reading request line")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, errors.Wrap(config.ErrParse, "malformed request line")
	}
	method, target := fields[0], fields[1]

	scheme, host, port, err := splitTarget(target)
	if err != nil {
		return Request{}, err
	}

	tp := textproto.NewReader(reader)
	headers, err := tp.ReadMIMEHeader()
	if err != nil && len(headers) == 0 {
		return Request{}, errors.Wrap(config.ErrParse, "reading headers")
	}

	if h := headers.Get("Host"); h != "" {
		hh, hp, err := splitHostPort(h, defaultPort(scheme))
		if err != nil {
			return Request{}, err
		}
		host, port = hh, hp
	} else if host == "" {
		return Request{}, errors.Wrap(config.ErrParse, "missing Host header and no absolute URL")
	}

	return Request{
		Method: method,
		Host:   host,
		Port:   port,
		Scheme: scheme,
		Raw:    buf,
	}, nil
}

func splitTarget(target string) (scheme, host, port string, err error) {
	if !strings.Contains(target, "://") {
		// relative target with a Host header to come; scheme defaults
		// to http.
		return "http", "", "", nil
	}
	parts := strings.SplitN(target, "://", 2)
	scheme = parts[0]
	rest := parts[1]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	host, port, err = splitHostPort(rest, defaultPort(scheme))
	return scheme, host, port, err
}

func splitHostPort(hostport, fallbackPort string) (host, port string, err error) {
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		return hostport[:idx], hostport[idx+1:], nil
	}
	return hostport, fallbackPort, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// Response is the result of parsing a response status line plus
// headers from the first chunk of an origin reply.
type Response struct {
	Status        int
	ContentLength int64
	HasLength     bool
	HeaderBytes   int // offset into the chunk where the body begins
}

// ParseResponseHead parses the status line and headers out of the
// first chunk of an origin response. Returns a ParseError if the
// status line is malformed.
func ParseResponseHead(buf []byte) (Response, error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	headerEnd := len(buf)
	if idx >= 0 {
		headerEnd = idx + 4
	}

	reader := bufio.NewReader(bytes.NewReader(buf[:headerEnd]))
	line, err := reader.ReadString('\n')
	if err != nil {
		return Response{}, errors.Wrap(config.ErrParse, "reading status line")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Response{}, errors.Wrap(config.ErrParse, "malformed status line")
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return Response{}, errors.Wrap(config.ErrParse, "malformed status code")
	}

	tp := textproto.NewReader(reader)
	headers, _ := tp.ReadMIMEHeader()

	resp := Response{Status: status, HeaderBytes: headerEnd}
	if cl := headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return Response{}, errors.Wrap(config.ErrParse, "malformed Content-Length")
		}
		resp.ContentLength = n
		resp.HasLength = true
	}
	return resp, nil
}
