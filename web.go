package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/sparkdeck/spark/game"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("spark v" + releaseVersion + "\n"))
		if err != nil {
			logrus.Errorf("write version: %v", err)
			return
		}

		logrus.Debugf("SERVE: Version page (%s) to %s", humanReadableSize(int64(written)), realIP(r))
	}
}

func serveHealthCheck(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte("Ok\n")); err != nil {
			logrus.Errorf("write health check: %v", err)
		}
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data := "User-agent: *\nDisallow: /\n"

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(data)); err != nil {
			logrus.Errorf("write robots.txt: %v", err)
		}
	}
}

// server bundles everything the handlers need.
type server struct {
	cfg       *Config
	engine    *game.Engine
	catalog   game.Catalog
	favorites game.Favorites
	hub       *Hub
	metrics   *metrics
}

func newServer(cfg *Config, store game.SessionStore, catalog game.Catalog, favorites game.Favorites) *server {
	s := &server{
		cfg:       cfg,
		catalog:   catalog,
		favorites: favorites,
		hub:       newHub(),
		metrics:   newMetrics(),
	}
	s.engine = game.NewEngine(store, catalog, favorites, nil, game.WithNotifier(s.hub.broadcast))
	return s
}

func (s *server) router() *httprouter.Router {
	cfg := s.cfg
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logrus.Errorf("panic serving %s: %v", r.URL.Path, i)
		securityHeaders(cfg, w)
		respondError(cfg, w, fmt.Errorf("internal error"))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))
	mux.Handler("GET", cfg.prefix+"/metrics", s.metrics.handler())

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	s.registerAPI(mux)

	return mux
}

// ServePage assembles the store, engine, and routes, then serves until the
// context is cancelled or a signal arrives.
func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logrus.Infof("START: spark v%s", releaseVersion)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	var store game.SessionStore
	var favorites game.Favorites
	switch cfg.store {
	case "redis":
		client, err := game.DialRedis(ctx, cfg.redis, cfg.redisPassword)
		if err != nil {
			return err
		}
		defer client.Close()
		store = game.NewRedisStore(client)
		favorites = game.NewRedisFavorites(client)
	default:
		store = game.NewMemoryStore()
		favorites = game.NewMemoryFavorites()
	}

	srv := newServer(cfg, store, catalog, favorites)

	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           srv.router(),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		var err error
		logrus.Infof("SERVE: Listening on %s://%s%s/", cfg.scheme(), httpSrv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = httpSrv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}
