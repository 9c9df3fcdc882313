package scripts

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/Morditux/cgisession"
)

var echoPage = template.Must(template.New("echo").Parse(`<html><body>
<p>Method: {{.Method}}</p>
{{- if eq .Method "GET"}}
<p>Query String: {{.QueryString}}</p>
{{- else if and (eq .Method "POST") .Body}}
<p>POST Data: {{printf "%s" .Body}}</p>
<p>Content Type: {{.ContentType}}</p>
<p>Content Length: {{.ContentLength}}</p>
{{- end}}
</body></html>
`))

// Echo reports the request method and, for GET, the query string or, for
// POST, the body and its content headers.
func Echo() cgisession.Handler {
	return cgisession.HandlerFunc(func(ctx context.Context, req *cgisession.Request) (*cgisession.Response, error) {
		var body bytes.Buffer
		if err := echoPage.Execute(&body, req); err != nil {
			return nil, err
		}
		resp := cgisession.NewResponse(http.StatusOK, "text/html")
		resp.Body = body.Bytes()
		return resp, nil
	})
}
