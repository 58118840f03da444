package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/observability"
	"github.com/rhuss/byok/pkg/transport"
)

// Services are the collaborators the routes call. Health may be empty.
type Services struct {
	Completions transport.CompletionService
	Threads     transport.ThreadService
	Credentials transport.CredentialService
	Providers   transport.ProviderCatalog
	Health      []transport.HealthChecker
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string
	// ValidateOnSet is the default for PUT /v1/credentials/{provider}
	// when the body does not say.
	ValidateOnSet bool
	Logger        *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 2 << 20,
		MetricsPath: "/metrics",
		Logger:      slog.Default(),
	}
}

// Adapter serves the byok API over HTTP.
type Adapter struct {
	svc      Services
	cfg      Config
	inflight *transport.InFlightRegistry
	router   chi.Router
}

// NewAdapter builds the router. Recovery, request id, logging and metrics
// middleware are always installed, in that order; extra middleware (auth)
// runs after them.
func NewAdapter(svc Services, cfg Config, extra ...transport.Middleware) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		svc:      svc,
		cfg:      cfg,
		inflight: transport.NewInFlightRegistry(),
	}

	r := chi.NewRouter()
	r.Use(transport.Recovery(cfg.Logger))
	r.Use(transport.RequestID())
	r.Use(transport.Logging(cfg.Logger))
	r.Use(observability.MetricsMiddleware)
	for _, mw := range extra {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", r.Method+" is not allowed on "+r.URL.Path),
			http.StatusMethodNotAllowed,
		)
	})

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	if cfg.MetricsPath != "" {
		r.Method(http.MethodGet, cfg.MetricsPath, observability.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/providers", a.handleListProviders)
		r.Get("/providers/{provider}/models", a.handleListModels)

		r.Get("/credentials", a.handleListCredentials)
		r.Put("/credentials/{provider}", a.handleSetCredential)
		r.Delete("/credentials/{provider}", a.handleDeleteCredential)
		r.Post("/credentials/{provider}/validate", a.handleValidateCredential)

		r.Post("/threads", a.handleCreateThread)
		r.Get("/threads", a.handleListThreads)
		r.Get("/threads/{threadID}", a.handleGetThread)
		r.Delete("/threads/{threadID}", a.handleDeleteThread)
		r.Post("/threads/{threadID}/completions", a.handleCompletion)
		r.Delete("/threads/{threadID}/completions/{messageID}", a.handleCancelCompletion)
	})

	a.router = r
	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.router
}

// InFlight exposes the registry of running streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// decodeJSON reads a size limited JSON body into v. On failure it writes
// the error response and returns false.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.cfg.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// parseLimit reads the optional limit query parameter.
func parseLimit(r *http.Request) (int, *api.APIError) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, api.NewInvalidRequestError("limit", "limit must be a positive integer")
	}
	return n, nil
}

// pathProvider returns the provider path parameter if it is supported.
func (a *Adapter) pathProvider(w http.ResponseWriter, r *http.Request) (api.ProviderID, bool) {
	p := api.ProviderID(chi.URLParam(r, "provider"))
	if !a.svc.Providers.Supports(p) {
		transport.WriteAPIError(w, api.NewUnsupportedProviderError(p))
		return "", false
	}
	return p, true
}

// pathThreadID returns the threadID path parameter if it is well formed.
func pathThreadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "threadID")
	if !api.ValidateThreadID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("thread_id", "malformed thread ID"))
		return "", false
	}
	return id, true
}
