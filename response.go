package cgisession

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrInvalidHeader is returned when a header name or value would break the
// response framing.
var ErrInvalidHeader = errors.New("invalid response header")

// Header is a single response header line.
type Header struct {
	Name  string
	Value string
}

// Response is what a Handler produces. Headers are emitted in order.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// NewResponse returns a response with the given status and content type.
func NewResponse(status int, contentType string) *Response {
	r := &Response{Status: status}
	if contentType != "" {
		r.AddHeader("Content-Type", contentType)
	}
	return r
}

func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// Header returns the first value of the named header.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetCookie appends a Set-Cookie header.
func (r *Response) SetCookie(c Cookie) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.AddHeader("Set-Cookie", c.String())
	return nil
}

// Emitter writes a Response in the byte layout a CGI host expects.
type Emitter struct {
	// StatusLine writes "HTTP/1.1 <code> <reason>" before the headers. When
	// false, a non-200 status is carried in a CGI "Status" header instead.
	StatusLine bool
}

// Emit writes the status line (optional), the headers, one blank line and
// the body. Nothing is written if a header is invalid.
func (e Emitter) Emit(w io.Writer, resp *Response) error {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	for _, h := range resp.Headers {
		if !validHeaderName(h.Name) || strings.ContainsAny(h.Value, "\r\n") {
			return fmt.Errorf("%w: %q", ErrInvalidHeader, h.Name)
		}
	}

	bw := bufio.NewWriter(w)
	if e.StatusLine {
		bw.WriteString("HTTP/1.1 ")
		bw.WriteString(statusText(status))
		bw.WriteString("\r\n")
	} else if status != http.StatusOK {
		if _, ok := resp.Header("Status"); !ok {
			bw.WriteString("Status: ")
			bw.WriteString(statusText(status))
			bw.WriteString("\r\n")
		}
	}
	for _, h := range resp.Headers {
		bw.WriteString(h.Name)
		bw.WriteString(": ")
		bw.WriteString(h.Value)
		bw.WriteString("\r\n")
	}
	bw.WriteString("\r\n")
	bw.Write(resp.Body)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func statusText(code int) string {
	reason := http.StatusText(code)
	if reason == "" {
		reason = "Unknown"
	}
	return strconv.Itoa(code) + " " + reason
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || c == ':' {
			return false
		}
	}
	return true
}
