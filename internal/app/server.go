package app

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/Morditux/cgisession"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router mounts every script under /cgi-bin/<name> for local development.
// Each request still goes through the gateway decoder, so scripts see the
// same Request they would get from a real CGI host.
func (a *App) Router(reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	metrics := NewMetrics(reg)

	gateways := make(map[string]*cgisession.Gateway, len(a.scripts))
	for name := range a.scripts {
		gw, _ := a.Gateway(name)
		gw.Logger = a.log.With("script", name)
		gw.Observe = metrics.Observer(name)
		gateways[name] = gw
	}

	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger())

	router.Any("/cgi-bin/:script", func(c *gin.Context) {
		gw, ok := gateways[ScriptName(c.Param("script"))]
		if !ok {
			c.String(http.StatusNotFound, "no such script\n")
			return
		}
		gw.ServeHTTP(c.Writer, c.Request)
	})

	router.GET("/healthz", func(c *gin.Context) {
		names := a.Scripts()
		sort.Strings(names)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "scripts": names})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return router
}

func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		WithRequestID(a.log).Info("http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Serve runs the development server until ctx is done.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(prometheus.NewRegistry()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
