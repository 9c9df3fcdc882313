package cgisession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Handler produces the response for one decoded request. It must not write
// to the process output itself.
type Handler interface {
	ServeCGI(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) ServeCGI(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Gateway is the thin adapter between a CGI host (environment, stdin,
// stdout) and a Handler. One Serve call handles one request.
type Gateway struct {
	Handler Handler
	Decoder Decoder
	Emitter Emitter
	Logger  *slog.Logger
	// Observe, when set, is called once per request after the response was
	// written (or failed to be written).
	Observe func(req *Request, resp *Response, elapsed time.Duration, err error)
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Run serves the current process's request.
func (g *Gateway) Run(ctx context.Context) error {
	return g.Serve(ctx, OSEnv{}, os.Stdin, os.Stdout)
}

// Serve decodes one request from env and in, calls the handler and emits
// the response to out. Decode and handler failures are answered with a 500
// response; the returned error reports them and any write failure.
func (g *Gateway) Serve(ctx context.Context, env Env, in io.Reader, out io.Writer) error {
	start := time.Now()
	log := g.logger()

	req, resp, herr := g.handle(ctx, env, in)

	err := g.Emitter.Emit(out, resp)
	if errors.Is(err, ErrInvalidHeader) {
		// Nothing was written yet, so the host can still get a 500.
		log.Error("cgi.emit.invalid_header", "err", err)
		resp = errorResponse(http.StatusInternalServerError)
		if eerr := g.Emitter.Emit(out, resp); eerr != nil {
			err = errors.Join(err, eerr)
		}
	} else if err != nil {
		log.Error("cgi.emit.failed", "err", err)
	} else {
		err = herr
	}

	if g.Observe != nil {
		g.Observe(req, resp, time.Since(start), err)
	}

	method := ""
	if req != nil {
		method = req.Method
	}
	log.Info("cgi.request",
		"method", method,
		"status", resp.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func (g *Gateway) handle(ctx context.Context, env Env, in io.Reader) (*Request, *Response, error) {
	log := g.logger()

	req, err := g.Decoder.Decode(env, in)
	if err != nil {
		log.Error("cgi.decode.failed", "err", err)
		return nil, errorResponse(http.StatusInternalServerError), err
	}

	resp, err := g.Handler.ServeCGI(ctx, req)
	if err != nil {
		log.Error("cgi.handler.failed", "method", req.Method, "script", req.ScriptName, "err", err)
		return req, errorResponse(http.StatusInternalServerError), err
	}
	if resp == nil {
		resp = NewResponse(http.StatusNoContent, "")
	}
	return req, resp, nil
}

func errorResponse(status int) *Response {
	resp := NewResponse(status, "text/plain; charset=utf-8")
	resp.Body = []byte(http.StatusText(status) + "\n")
	resp.AddHeader("Content-Length", strconv.Itoa(len(resp.Body)))
	return resp
}

// ServeHTTP lets a Gateway run behind net/http, for development servers and
// tests. The request is turned into gateway variables and decoded exactly as
// a CGI invocation would be.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, resp, herr := g.handle(r.Context(), EnvFromHTTP(r), r.Body)

	for _, hd := range resp.Headers {
		if !validHeaderName(hd.Name) || strings.ContainsAny(hd.Value, "\r\n") {
			g.logger().Error("cgi.emit.invalid_header", "header", hd.Name)
			herr = fmt.Errorf("%w: %q", ErrInvalidHeader, hd.Name)
			resp = errorResponse(http.StatusInternalServerError)
			break
		}
	}

	h := w.Header()
	for _, hd := range resp.Headers {
		h.Add(hd.Name, hd.Value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(resp.Body)
	if err == nil {
		err = herr
	}

	if g.Observe != nil {
		g.Observe(req, resp, time.Since(start), err)
	}
}

// EnvFromHTTP builds the gateway variables a CGI host would export for r.
func EnvFromHTTP(r *http.Request) MapEnv {
	env := MapEnv{
		EnvRequestMethod: r.Method,
		EnvQueryString:   r.URL.RawQuery,
		EnvScriptName:    r.URL.Path,
		EnvPathInfo:      r.URL.Path,
	}
	if r.ContentLength > 0 {
		env[EnvContentLength] = strconv.FormatInt(r.ContentLength, 10)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		env[EnvContentType] = ct
	}
	if c := r.Header.Values("Cookie"); len(c) > 0 {
		env[EnvHTTPCookie] = strings.Join(c, "; ")
	}
	return env
}
