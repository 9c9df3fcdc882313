/*
Package cgisession implements the CGI gateway contract together with a
persisted, cookie-keyed session store.

A CGI process receives its request through environment variables
(REQUEST_METHOD, QUERY_STRING, CONTENT_LENGTH, CONTENT_TYPE, HTTP_COOKIE)
and standard input, and answers on standard output with an optional status
line, header lines, one blank line and the body. The package splits that
work into small pieces:

  - Decoder: environment + input stream to a Request. Reads exactly
    CONTENT_LENGTH bytes and never more.
  - Emitter: Response to the exact byte layout the host expects, with or
    without an "HTTP/1.1 <code> <reason>" status line.
  - ParseCookies / Cookie.String: lenient Cookie header parsing and
    Set-Cookie serialization (path, Max-Age, HttpOnly).
  - Manager: the session mapping (token to named counters), loaded from a
    Store, mutated per request and rewritten in full on every save.
  - Gateway: runs a Handler once per invocation, or behind net/http.

Usage:

	store, err := cgisession.NewFileStore("session_db.json")
	if err != nil {
		log.Fatal(err)
	}
	mgr, err := cgisession.NewManager(cgisession.ManagerConfig{Store: store})
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	gw := &cgisession.Gateway{
		Handler: cgisession.HandlerFunc(func(ctx context.Context, req *cgisession.Request) (*cgisession.Response, error) {
			token, _ := req.Cookies().Get("session_id")
			s, _, err := mgr.Visit(ctx, token)
			if err != nil {
				return nil, err
			}
			resp := cgisession.NewResponse(http.StatusOK, "text/plain")
			resp.SetCookie(cgisession.Cookie{Name: "session_id", Value: s.ID, Path: "/", MaxAge: 3600})
			resp.Body = fmt.Appendf(nil, "visits: %d\n", s.Visits())
			return resp, nil
		}),
	}
	if err := gw.Run(context.Background()); err != nil {
		os.Exit(1)
	}

Store Implementations:

  - FileStore: one JSON file, the default. Missing file means empty store.
  - MemoryStore: in-process, for tests.
  - SQLiteStore: modernc.org/sqlite, CGO-free.
  - PostgreSQLStore: github.com/lib/pq, with advisory locking.
  - MemcachedStore: github.com/bradfitz/gomemcache, mapping in one item.
  - RedisStore: github.com/redis/go-redis/v9, mapping in one hash.

Concurrency:

Processes sharing a store are not coordinated by default: two concurrent
requests both load the mapping, both save, and the later save silently
discards the earlier one. ManagerConfig.Serialize runs Manager.Visit under a
Locker (flock for files, advisory locks or leases for the database and cache
stores) so the load/modify/save cycle is exclusive. Nothing in this package
installs its own timeout; every blocking call takes a context.Context.
*/
package cgisession
