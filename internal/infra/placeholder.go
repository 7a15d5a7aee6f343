package infra

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DefaultPlaceholderPath is the page blocked navigations are redirected to.
const DefaultPlaceholderPath = "/blocked.html"

var blockedPage = template.Must(template.New("blocked").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Blocked during focus</title>
<style>
body { background: #111; color: #ddd; font-family: monospace; display: flex;
       align-items: center; justify-content: center; height: 100vh; margin: 0; }
main { text-align: center; }
h1 { font-weight: normal; letter-spacing: 0.1em; }
p  { color: #888; }
</style>
</head>
<body>
<main>
<h1>Focus Mode</h1>
{{if .Host}}<p>{{.Host}} is blocked until your session ends.</p>{{else}}<p>This site is blocked until your session ends.</p>{{end}}
<p>Deep work session in progress.</p>
</main>
</body>
</html>
`))

// PlaceholderServer serves the local page blocked navigations land on.
type PlaceholderServer struct {
	addr   string
	path   string
	logger *zap.Logger
}

// NewPlaceholderServer creates a server for the given listen address and page path.
func NewPlaceholderServer(addr, path string, logger *zap.Logger) *PlaceholderServer {
	if path == "" {
		path = DefaultPlaceholderPath
	}
	return &PlaceholderServer{addr: addr, path: path, logger: logger}
}

// Handler returns the HTTP routes.
// Requests arriving through the hosts engine carry the blocked site's Host
// header and an arbitrary path, so every GET renders the page.
func (s *PlaceholderServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get(s.path, s.serveBlocked)
	r.Get("/*", s.serveBlocked)
	return r
}

// Run serves until ctx is canceled.
func (s *PlaceholderServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("placeholder server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *PlaceholderServer) serveBlocked(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		host = requestHost(r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := blockedPage.Execute(w, struct{ Host string }{Host: host}); err != nil {
		s.logger.Warn("failed to render placeholder page", zap.Error(err))
	}
}

// requestHost returns the Host header without port, or "" for loopback addresses.
func requestHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || host == "localhost" {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ""
	}
	return host
}
