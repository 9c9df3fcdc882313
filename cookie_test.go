package cgisession

import (
	"errors"
	"testing"
)

func TestParseCookies(t *testing.T) {
	c := ParseCookies(` theme=dark; broken; session_id=first ; session_id=second;=nameless; quoted="v 1"`)

	if v, ok := c.Get("session_id"); !ok || v != "first" {
		t.Errorf("expected first-match-wins 'first', got %q (found=%v)", v, ok)
	}
	if v, _ := c.Get("theme"); v != "dark" {
		t.Errorf("expected theme=dark, got %q", v)
	}
	if v, _ := c.Get("quoted"); v != "v 1" {
		t.Errorf("expected quotes stripped, got %q", v)
	}
	if _, ok := c.Get("broken"); ok {
		t.Error("segment without '=' must be ignored")
	}
	if len(c) != 4 {
		t.Errorf("expected 4 cookies, got %d: %+v", len(c), c)
	}
}

func TestParseCookies_Empty(t *testing.T) {
	if c := ParseCookies(""); len(c) != 0 {
		t.Errorf("expected no cookies, got %+v", c)
	}
	if _, ok := ParseCookies(";;;").Get("x"); ok {
		t.Error("unexpected cookie")
	}
}

func TestCookie_String(t *testing.T) {
	tests := []struct {
		name   string
		cookie Cookie
		want   string
	}{
		{"plain", Cookie{Name: "a", Value: "b"}, "a=b"},
		{"session", Cookie{Name: "session_id", Value: "u", Path: "/", MaxAge: 3600}, "session_id=u; path=/; Max-Age=3600"},
		{"delete", Cookie{Name: "session_id", Value: "", Path: "/", MaxAge: -1}, "session_id=; path=/; Max-Age=0"},
		{"httponly", Cookie{Name: "a", Value: "b", HttpOnly: true}, "a=b; HttpOnly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cookie.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCookie_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		cookie Cookie
	}{
		{"session token", Cookie{Name: "session_id", Value: "0b5f3c1e-8f43-4c62-9d3a-2d1f0f6c0a11", Path: "/", MaxAge: 3600}},
		{"empty value", Cookie{Name: "k", Value: ""}},
		{"inner space", Cookie{Name: "k", Value: "a b"}},
		{"inner quote", Cookie{Name: "k", Value: `a"b`}},
		{"equals in value", Cookie{Name: "k", Value: "a=b=c", HttpOnly: true}},
		{"delete", Cookie{Name: "k", Value: "x", Path: "/app", MaxAge: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cookie.Validate(); err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			got, ok := ParseCookies(tt.cookie.String()).Get(tt.cookie.Name)
			if !ok || got != tt.cookie.Value {
				t.Errorf("round trip of %q gave %q (found=%v)", tt.cookie.Value, got, ok)
			}
		})
	}
}

func TestCookie_Validate(t *testing.T) {
	bad := []Cookie{
		{Name: "", Value: "x"},
		{Name: "a b", Value: "x"},
		{Name: "a", Value: "x;y"},
		{Name: "a", Value: "x\r\nSet-Cookie: evil=1"},
		{Name: "a", Value: "x", Path: "/\n"},
		{Name: "k", Value: `"quoted"`},
		{Name: "k", Value: " padded "},
		{Name: "k", Value: "trailing\t"},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidCookie) {
			t.Errorf("expected ErrInvalidCookie for %+v, got %v", c, err)
		}
	}
	if err := (Cookie{Name: "a", Value: "b", Path: "/"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
