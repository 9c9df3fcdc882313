// Package app wires the cgisession runtime: config, logging, the session
// store, the bundled scripts and the development server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/Morditux/cgisession"
	"github.com/Morditux/cgisession/internal/scripts"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownScript is returned for a script name with no registered handler.
var ErrUnknownScript = errors.New("unknown script")

// App owns the session store and the script handlers for one process.
type App struct {
	cfg Config
	log *slog.Logger

	mgr     *cgisession.Manager
	scripts map[string]cgisession.Handler
}

// New builds the configured store and the script table.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := cgisession.NewManager(cgisession.ManagerConfig{
		Store:     store,
		Serialize: cfg.Serialize,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return newApp(cfg, log, mgr), nil
}

func newApp(cfg Config, log *slog.Logger, mgr *cgisession.Manager) *App {
	var postsLock cgisession.Locker
	if cfg.Serialize {
		postsLock = cgisession.NewFileLocker(cfg.PostsFile + ".lock")
	}

	return &App{
		cfg: cfg,
		log: log,
		mgr: mgr,
		scripts: map[string]cgisession.Handler{
			"visits": scripts.Visits(scripts.VisitsConfig{
				Manager:    mgr,
				CookieName: cfg.CookieName,
				MaxAge:     cfg.CookieMaxAge,
				HttpOnly:   cfg.CookieHttpOnly,
			}),
			"echo": scripts.Echo(),
			"posts": scripts.Posts(scripts.PostsConfig{
				DataFile: cfg.PostsFile,
				Locker:   postsLock,
				Logger:   log,
			}),
		},
	}
}

func (a *App) Close() error {
	return a.mgr.Close()
}

// Scripts returns the registered script names.
func (a *App) Scripts() []string {
	names := make([]string, 0, len(a.scripts))
	for name := range a.scripts {
		names = append(names, name)
	}
	return names
}

// Gateway returns a gateway running the named script.
func (a *App) Gateway(script string) (*cgisession.Gateway, error) {
	h, ok := a.scripts[ScriptName(script)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScript, script)
	}
	return &cgisession.Gateway{
		Handler: h,
		Decoder: cgisession.Decoder{MaxBodyBytes: int64(a.cfg.MaxBodyBytes)},
		Emitter: cgisession.Emitter{StatusLine: a.cfg.StatusLine},
		Logger:  WithRequestID(a.log).With("script", ScriptName(script)),
	}, nil
}

// ServeCGI answers one request on out. An unknown script is answered with
// a 404 and reported as ErrUnknownScript.
func (a *App) ServeCGI(ctx context.Context, script string, env cgisession.Env, in io.Reader, out io.Writer) error {
	gw, err := a.Gateway(script)
	if err != nil {
		a.log.Error("cgi.script.unknown", "script", script)
		resp := cgisession.NewResponse(http.StatusNotFound, "text/plain; charset=utf-8")
		resp.Body = []byte("Not Found\n")
		emitter := cgisession.Emitter{StatusLine: a.cfg.StatusLine}
		return errors.Join(err, emitter.Emit(out, resp))
	}
	return gw.Serve(ctx, env, in, out)
}

// ScriptName maps "/cgi-bin/visits.py" and similar to "visits".
func ScriptName(s string) string {
	s = path.Base(strings.TrimSpace(s))
	if ext := path.Ext(s); ext != "" {
		s = strings.TrimSuffix(s, ext)
	}
	return strings.ToLower(s)
}

func newStore(ctx context.Context, cfg Config) (cgisession.Store, error) {
	switch cfg.Store {
	case StoreFile, "":
		return cgisession.NewFileStoreWithConfig(cgisession.FileConfig{
			Path:        cfg.StorePath,
			AtomicWrite: cfg.AtomicWrite,
			LockPath:    cfg.LockPath,
		})

	case StoreMemory:
		return cgisession.NewMemoryStore(), nil

	case StoreSQLite:
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = cfg.StorePath
		}
		lockPath := cfg.LockPath
		if lockPath == "" {
			lockPath = dsn + ".lock"
		}
		return cgisession.NewSQLiteStoreWithConfig(cgisession.SQLiteConfig{
			DSN:          dsn,
			MaxOpenConns: 4,
			MaxIdleConns: 4,
			LockPath:     lockPath,
		})

	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("CGISESSION_DATABASE_URL is required for the postgres store")
		}
		return cgisession.NewPostgreSQLStore(cfg.DatabaseURL)

	case StoreMemcached:
		return cgisession.NewMemcachedStore(0, cfg.MemcachedServers...), nil

	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return cgisession.NewRedisStore(client), nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
