package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/api/handlers"
	"github.com/cbodonnell/tickrelay/pkg/api/middleware"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories"
	"github.com/gorilla/mux"
)

// DefaultPort is the status API port.
const DefaultPort = 18080

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port int
	TLS  *TLSConfig
	// Session is the hosted session reported by /status. It may be nil.
	Session handlers.Session
	// Repository serves /matches. It may be nil.
	Repository repositories.Repository
}

// NewRouter builds the status API routes.
func NewRouter(opts NewAPIServerOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging, middleware.CORS)
	router.HandleFunc("/status", handlers.HandleStatus(opts.Session)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/sessions/{sessionID}/state", handlers.HandleSessionState(opts.Session)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/matches", handlers.HandleListMatches(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/matches/{sessionID}", handlers.HandleGetMatch(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
	return router
}

// NewAPIServer creates a new http.Server for the status API
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start blocks serving requests until Stop is called.
func (s *APIServer) Start() {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		log.Error("API server error: %v", err)
		return
	}
	s.Serve(ln)
}

// Serve serves requests on ln until Stop is called.
func (s *APIServer) Serve(ln net.Listener) {
	var serve func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", ln.Addr())
		serve = func() error {
			return s.server.ServeTLS(ln, s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", ln.Addr())
		serve = func() error {
			return s.server.Serve(ln)
		}
	}
	if err := serve(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
