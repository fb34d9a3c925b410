// Package api implements the HTTP API Server: the OpenFaaS provider
// contract (/system/functions, /system/function/{name}) plus the
// namespace CRUD endpoints and the invocation proxy routes
// (/function/...), all routed with gorilla/mux.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/namespace"
	"github.com/faas-containerd/faasd-go/pkg/orchestrator"
	"github.com/faas-containerd/faasd-go/pkg/proxy"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

// OrchestratorBackend is the subset of *orchestrator.Orchestrator the
// Server drives. Satisfied by *orchestrator.Orchestrator in production
// and by an in-memory fake in tests, so the route handlers can be
// exercised without a live containerd socket.
type OrchestratorBackend interface {
	Deploy(ctx context.Context, deployment types.Deployment) error
	Delete(ctx context.Context, req types.DeleteRequest) error
	Update(ctx context.Context, deployment types.Deployment) error
	List(ctx context.Context, namespace string) ([]types.Status, error)
	Status(ctx context.Context, query types.Query) (types.Status, error)
	Resolve(ctx context.Context, query types.Query) (*url.URL, error)
	Namespaces() *namespace.Service
}

// Server is the HTTP front door: function lifecycle routes backed by the
// Orchestrator, and invocation routes backed by the Invocation Proxy.
type Server struct {
	orch  OrchestratorBackend
	proxy *proxy.Proxy
	http  *http.Server
}

// New builds a Server listening on addr.
func New(addr string, orch OrchestratorBackend) *Server {
	s := &Server{
		orch:  orch,
		proxy: proxy.New(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/system/functions", s.handleFunctions).Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	router.HandleFunc("/system/function/{name}", s.handleFunctionStatus).Methods(http.MethodGet)
	router.HandleFunc("/system/namespaces", s.handleNamespaces).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/system/namespaces/{name}", s.handleNamespace).Methods(http.MethodGet, http.MethodPut, http.MethodDelete)
	router.PathPrefix("/function/").HandlerFunc(s.handleInvoke).Methods(
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead, http.MethodOptions,
	)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Use(requestIDMiddleware)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// requestIDMiddleware tags every request with a correlation ID, logged
// alongside the method and path so a single invocation can be traced
// across the orchestrator's log lines.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		logger := log.Logger.With().Str("request_id", reqID).Logger()
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request received")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the server until it errors or is shut down.
func (s *Server) ListenAndServe() error {
	log.Logger.Info().Str("addr", s.http.Addr).Msg("http api server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		namespace := r.URL.Query().Get("namespace")
		statuses, err := s.orch.List(ctx, namespace)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, statuses)

	case http.MethodPost, http.MethodPut:
		var deployment types.Deployment
		if err := json.NewDecoder(r.Body).Decode(&deployment); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var opErr error
		if r.Method == http.MethodPost {
			opErr = s.orch.Deploy(ctx, deployment)
		} else {
			opErr = s.orch.Update(ctx, deployment)
		}
		if opErr != nil {
			writeError(w, statusFor(opErr), opErr)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		if r.Method == http.MethodPost {
			fmt.Fprintf(w, "function %s was created successfully", deployment.Service)
		}

	case http.MethodDelete:
		var req types.DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.orch.Delete(ctx, req); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "function %s was deleted successfully", req.FunctionName)
	}
}

func (s *Server) handleFunctionStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	query := types.Query{Service: name, Namespace: r.URL.Query().Get("namespace")}

	status, err := s.orch.Status(r.Context(), query)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		list, err := s.orch.Namespaces().List(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var ns types.Namespace
		if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.orch.Namespaces().Create(ctx, ns.Name, ns.Labels); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleNamespace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	switch r.Method {
	case http.MethodGet:
		ns, err := s.orch.Namespaces().Get(ctx, name)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, ns)

	case http.MethodPut:
		var ns types.Namespace
		if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.orch.Namespaces().Update(ctx, name, ns.Labels); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusOK)

	case http.MethodDelete:
		if err := s.orch.Namespaces().Delete(ctx, name); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// handleInvoke parses the "/function/..." path grammar and forwards the
// request to the resolved function.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	trailing := r.URL.Path[len("/function/"):]
	parsed, err := proxy.ParsePath(trailing)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	upstream, err := s.orch.Resolve(r.Context(), parsed.Query)
	if err != nil {
		writeError(w, http.StatusMethodNotAllowed, errors.New("invalid function name: "+err.Error()))
		return
	}

	if err := s.proxy.Forward(r.Context(), w, r, upstream, parsed.Path); err != nil {
		log.Logger.Error().Err(err).Str("function", parsed.Query.Service).Msg("proxy forward failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps an orchestrator error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrDeployInvalid),
		errors.Is(err, orchestrator.ErrUpdateInvalid),
		errors.Is(err, orchestrator.ErrStatusInvalid):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrDeleteNotFound),
		errors.Is(err, orchestrator.ErrUpdateNotFound),
		errors.Is(err, orchestrator.ErrStatusNotFound),
		errors.Is(err, orchestrator.ErrResolveNotFound),
		errors.Is(err, namespace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, namespace.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
