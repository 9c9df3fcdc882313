package cgisession

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCookie is returned when a cookie cannot be serialized safely.
var ErrInvalidCookie = errors.New("invalid cookie")

// Cookie is a single cookie. Attributes are only meaningful in the
// server to client direction.
type Cookie struct {
	Name  string
	Value string
	Path  string
	// MaxAge follows net/http: 0 means no Max-Age attribute, a negative
	// value means Max-Age=0 (delete now), a positive value is in seconds.
	MaxAge   int
	HttpOnly bool
}

// Cookies is the ordered list of name/value pairs carried in a Cookie header.
type Cookies []Cookie

// Get returns the value of the first cookie named name.
func (c Cookies) Get(name string) (string, bool) {
	for _, ck := range c {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// ParseCookies parses a client Cookie header. Segments without '=' are
// skipped, so a malformed segment never invalidates the rest of the header.
func ParseCookies(header string) Cookies {
	var out Cookies
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out = append(out, Cookie{Name: name, Value: value})
	}
	return out
}

// Validate reports whether the cookie can be written as a Set-Cookie value
// without breaking the header framing.
func (c Cookie) Validate() error {
	if c.Name == "" || strings.ContainsAny(c.Name, "=; \t\r\n\"") {
		return ErrInvalidCookie
	}
	if strings.ContainsAny(c.Value, ";\r\n") || strings.ContainsAny(c.Path, ";\r\n") {
		return ErrInvalidCookie
	}
	// ParseCookies trims and unquotes values, so these would not read back.
	if strings.TrimSpace(c.Value) != c.Value {
		return ErrInvalidCookie
	}
	if len(c.Value) >= 2 && c.Value[0] == '"' && c.Value[len(c.Value)-1] == '"' {
		return ErrInvalidCookie
	}
	return nil
}

// String serializes the cookie as a Set-Cookie header value:
//
//	name=value; path=/; Max-Age=3600
//
// HttpOnly is appended only when enabled.
func (c Cookie) String() string {
	var b strings.Builder
	b.Grow(len(c.Name) + len(c.Value) + len(c.Path) + 32)
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Path != "" {
		b.WriteString("; path=")
		b.WriteString(c.Path)
	}
	switch {
	case c.MaxAge > 0:
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		b.WriteString("; Max-Age=0")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}
