package scripts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/Morditux/cgisession"
)

// PostsConfig configures the posts board.
type PostsConfig struct {
	// DataFile holds {"posts": [...]}.
	DataFile string
	// Locker, when set, guards the read/append/write cycle of a new post.
	Locker cgisession.Locker
	Logger *slog.Logger
}

type postsData struct {
	Posts []string `json:"posts"`
}

var postsPage = template.Must(template.New("posts").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Posts</title></head>
<body>
<h1>Posts</h1>
<ul>
{{- range .}}
<li>{{.}}</li>
{{- end}}
</ul>
<form method="post" enctype="application/x-www-form-urlencoded">
<label for="new_post">New Post:</label>
<textarea id="new_post" name="new_post" rows="4"></textarea>
<button type="submit">Submit</button>
</form>
</body>
</html>
`))

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Response</title></head>
<body>
<h1 class="{{if .Error}}error{{else}}ok{{end}}">{{.Message}}</h1>
<a href="{{.Back}}">Go back</a>
</body>
</html>
`))

// Posts lists posts on GET and appends the new_post form field on POST.
func Posts(cfg PostsConfig) cgisession.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return cgisession.HandlerFunc(func(ctx context.Context, req *cgisession.Request) (*cgisession.Response, error) {
		if req.Method != http.MethodPost {
			data, err := loadPosts(cfg.DataFile)
			if err != nil {
				log.Warn("posts.load.failed", "file", cfg.DataFile, "err", err)
			}
			return render(http.StatusOK, postsPage, data.Posts)
		}

		back := req.ScriptName
		if back == "" {
			back = "."
		}

		post := strings.TrimSpace(req.Form().Get("new_post"))
		if post == "" {
			return renderResult(http.StatusBadRequest, "No content provided!", back, true)
		}

		if err := appendPost(ctx, cfg, post); err != nil {
			log.Error("posts.append.failed", "file", cfg.DataFile, "err", err)
			return renderResult(http.StatusInternalServerError, "Error: could not save post", back, true)
		}
		return renderResult(http.StatusOK, "Post added successfully!", back, false)
	})
}

func appendPost(ctx context.Context, cfg PostsConfig, post string) (err error) {
	if cfg.Locker != nil {
		unlock, lerr := cfg.Locker.Lock(ctx)
		if lerr != nil {
			return lerr
		}
		defer func() {
			if uerr := unlock(); uerr != nil {
				err = errors.Join(err, fmt.Errorf("failed to unlock posts: %w", uerr))
			}
		}()
	}

	data, err := loadPosts(cfg.DataFile)
	if err != nil {
		return err
	}
	data.Posts = append(data.Posts, post)

	b, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	if err := os.WriteFile(cfg.DataFile, b, 0o644); err != nil {
		return fmt.Errorf("failed to write posts: %w", err)
	}
	return nil
}

// loadPosts returns an empty list for a missing file. A present but
// undecodable file is an error so a POST never overwrites it.
func loadPosts(path string) (postsData, error) {
	var data postsData
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("failed to read posts: %w", err)
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return postsData{}, fmt.Errorf("%w: %w", cgisession.ErrCorruptStore, err)
	}
	return data, nil
}

func render(status int, tmpl *template.Template, data any) (*cgisession.Response, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, err
	}
	resp := cgisession.NewResponse(status, "text/html")
	resp.Body = body.Bytes()
	return resp, nil
}

func renderResult(status int, message, back string, isError bool) (*cgisession.Response, error) {
	return render(status, resultPage, struct {
		Message string
		Back    string
		Error   bool
	}{message, back, isError})
}
