package scripts

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/Morditux/cgisession"
)

const (
	DefaultCookieName = "session_id"
	DefaultMaxAge     = 3600
)

// VisitsConfig configures the visit counter.
type VisitsConfig struct {
	Manager    *cgisession.Manager
	CookieName string
	CookiePath string
	// MaxAge of the session cookie in seconds. Expiry is left to the client.
	MaxAge int
	// HttpOnly is off by default so page scripts can read and delete the cookie.
	HttpOnly bool
}

var visitsPage = template.Must(template.New("visits").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>cookies</title>
<script>
function deleteCookie() {
	document.cookie = '{{.Cookie}}=; Max-Age=0; path={{.Path}}';
	location.reload();
}
</script>
</head>
<body>
<h1>Welcome...</h1>
<p>Your session ID is:</p>
<code>{{.ID}}</code>
<p>Times you have visited this page:</p>
<p class="visits">{{.Visits}}</p>
<button onclick="location.reload()">Reload Page</button>
<button onclick="deleteCookie()">Delete Cookie</button>
</body>
</html>
`))

// Visits counts page views per session. The session is saved before the
// response is built, so a failed save never yields a 200.
func Visits(cfg VisitsConfig) cgisession.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	return cgisession.HandlerFunc(func(ctx context.Context, req *cgisession.Request) (*cgisession.Response, error) {
		token, _ := req.Cookies().Get(cfg.CookieName)

		s, _, err := cfg.Manager.Visit(ctx, token)
		if err != nil {
			return nil, err
		}

		var body bytes.Buffer
		err = visitsPage.Execute(&body, struct {
			ID     string
			Visits int64
			Cookie string
			Path   string
		}{s.ID, s.Visits(), cfg.CookieName, cfg.CookiePath})
		if err != nil {
			return nil, err
		}

		resp := cgisession.NewResponse(http.StatusOK, "text/html")
		err = resp.SetCookie(cgisession.Cookie{
			Name:     cfg.CookieName,
			Value:    s.ID,
			Path:     cfg.CookiePath,
			MaxAge:   cfg.MaxAge,
			HttpOnly: cfg.HttpOnly,
		})
		if err != nil {
			return nil, err
		}
		resp.Body = body.Bytes()
		return resp, nil
	})
}
