package httputil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	prefix     string
	middleware []Middleware
	parent     *Router
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux: http.NewServeMux(),
		server: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithLogger sets the logger used for server lifecycle messages.
func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added. Middleware on the
// top-level router wraps the whole mux, so unmatched routes, 405 responses and
// preflight requests pass through it too. Middleware on a group wraps only the
// group's routes.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	if len(additional) > 0 {
		r.middleware = append(r.middleware, additional...)
	}
}

// Group creates a new sub-router with a specified prefix. The sub-router inherits the middleware
// from its parent router.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := &Router{
		mux:    r.mux,
		server: r.server,
		logger: r.logger,
		prefix: r.prefix + prefix,
		parent: r.top(),
	}
	if r.parent != nil {
		g.middleware = slices.Clone(r.middleware)
	}
	return g
}

// top returns the router that owns the mux.
func (r *Router) top() *Router {
	if r.parent != nil {
		return r.parent
	}
	return r
}

// wrap applies mws to h so that the first middleware runs first.
func wrap(h http.Handler, mws []Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Handle registers an HTTP handler for a given method and pattern as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements)
// The handler `METHOD /pattern` on a route group with a /prefix resolves to `METHOD /prefix/pattern`.
// Group middleware added with Use before Handle wraps the handler.
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	parts := strings.SplitN(methodPattern, " ", 2)
	if len(parts) != 2 {
		panic(fmt.Sprintf("httputil: invalid method pattern: %q", methodPattern))
	}
	method, pattern := parts[0], parts[1]

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.parent != nil {
		handler = wrap(handler, r.middleware)
	}
	fullPattern := fmt.Sprintf("%s %s%s", method, r.prefix, pattern)

	r.mux.Handle(fullPattern, handler)
}

// HandleFunc is the http.HandlerFunc variant of Handle.
func (r *Router) HandleFunc(methodPattern string, handler http.HandlerFunc) {
	r.Handle(methodPattern, handler)
}

// ServeHTTP dispatches to the registered routes through the top-level
// middleware. Unmatched requests are answered by the underlying ServeMux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.top().applyMiddleware().ServeHTTP(w, req)
}

func (r *Router) applyMiddleware() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return wrap(r.mux, r.middleware)
}

// ListenAndServe starts the server on addr and blocks until it stops.
// A graceful Shutdown makes it return nil.
func (r *Router) ListenAndServe(addr string) error {
	r.logger.Info("starting server", zap.String("addr", addr))

	r.server.Addr = addr
	r.server.Handler = r

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down server")
	return r.server.Shutdown(ctx)
}
