package cgisession

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMalformedContentLength is returned when CONTENT_LENGTH is not a non-negative integer.
	ErrMalformedContentLength = errors.New("malformed content length")

	// ErrTruncatedBody is returned when the input stream ends before CONTENT_LENGTH bytes were read.
	ErrTruncatedBody = errors.New("truncated request body")

	// ErrBodyTooLarge is returned when CONTENT_LENGTH exceeds the decoder's MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
)

// DefaultMaxBodyBytes is the body limit used when Decoder.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 10 << 20

// Gateway environment variables read by the decoder.
const (
	EnvRequestMethod = "REQUEST_METHOD"
	EnvQueryString   = "QUERY_STRING"
	EnvContentLength = "CONTENT_LENGTH"
	EnvContentType   = "CONTENT_TYPE"
	EnvHTTPCookie    = "HTTP_COOKIE"
	EnvScriptName    = "SCRIPT_NAME"
	EnvPathInfo      = "PATH_INFO"
)

// Env looks up per-invocation gateway variables.
type Env interface {
	Lookup(key string) (string, bool)
}

// MapEnv is an Env backed by a map. Useful in tests and when adapting an HTTP request.
type MapEnv map[string]string

func (e MapEnv) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Request is the decoded gateway request. It is not modified after decoding.
type Request struct {
	Method      string
	QueryString string
	// ContentLength is -1 when CONTENT_LENGTH was not provided.
	ContentLength int64
	ContentType   string
	CookieHeader  string
	ScriptName    string
	PathInfo      string
	// Body is nil unless ContentLength > 0.
	Body []byte
}

// Query parses the raw query string. Malformed pairs are dropped.
func (r *Request) Query() url.Values {
	v, _ := url.ParseQuery(r.QueryString)
	return v
}

// Form parses an application/x-www-form-urlencoded body. Any other content
// type yields an empty set.
func (r *Request) Form() url.Values {
	ct := strings.ToLower(strings.TrimSpace(r.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "application/x-www-form-urlencoded" || len(r.Body) == 0 {
		return url.Values{}
	}
	v, _ := url.ParseQuery(string(r.Body))
	return v
}

// Cookies parses the raw cookie header.
func (r *Request) Cookies() Cookies {
	return ParseCookies(r.CookieHeader)
}

// Decoder turns a gateway environment and input stream into a Request.
type Decoder struct {
	// MaxBodyBytes caps the declared content length. 0 means DefaultMaxBodyBytes,
	// a negative value disables the limit.
	MaxBodyBytes int64
}

// DecodeRequest decodes using a zero Decoder.
func DecodeRequest(env Env, body io.Reader) (*Request, error) {
	var d Decoder
	return d.Decode(env, body)
}

// Decode reads the request metadata from env and exactly CONTENT_LENGTH bytes
// from body. It never reads past the declared length.
func (d Decoder) Decode(env Env, body io.Reader) (*Request, error) {
	req := &Request{ContentLength: -1}
	req.Method, _ = env.Lookup(EnvRequestMethod)
	req.QueryString, _ = env.Lookup(EnvQueryString)
	req.ContentType, _ = env.Lookup(EnvContentType)
	req.CookieHeader, _ = env.Lookup(EnvHTTPCookie)
	req.ScriptName, _ = env.Lookup(EnvScriptName)
	req.PathInfo, _ = env.Lookup(EnvPathInfo)

	raw, ok := env.Lookup(EnvContentLength)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return req, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedContentLength, raw)
	}
	req.ContentLength = n
	if n == 0 {
		return req, nil
	}

	limit := d.MaxBodyBytes
	if limit == 0 {
		limit = DefaultMaxBodyBytes
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, limit)
	}

	if body == nil {
		return nil, fmt.Errorf("%w: no input stream", ErrTruncatedBody)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncatedBody, err)
	}
	req.Body = buf

	return req, nil
}
