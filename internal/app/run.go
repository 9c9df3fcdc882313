package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Morditux/cgisession"
)

// Options select the process mode. An empty ServeAddr means one CGI request.
type Options struct {
	ServeAddr string
	// Script names the handler in CGI mode. Defaults to the base of SCRIPT_NAME,
	// then to the program name so the binary can be linked as visits.cgi.
	Script string
}

// Run is the CLI entrypoint used by cmd/cgisession.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(opts Options) error {
	cfg := LoadConfig()
	log := NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.failed", "store", cfg.Store, "err", err)
		return err
	}
	defer a.Close()

	if opts.ServeAddr != "" {
		return a.Serve(ctx, opts.ServeAddr)
	}

	script := opts.Script
	if script == "" {
		script, _ = cgisession.OSEnv{}.Lookup(cgisession.EnvScriptName)
	}
	if script == "" {
		script = os.Args[0]
	}
	return a.ServeCGI(ctx, script, cgisession.OSEnv{}, os.Stdin, os.Stdout)
}
