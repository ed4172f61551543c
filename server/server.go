package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
	"github.com/relaygate/go-relay-server/events"
	"github.com/relaygate/go-relay-server/internal/config"
	"github.com/relaygate/go-relay-server/relay"
	"github.com/relaygate/go-relay-server/token"
)

// Deps holds the collaborators the HTTP boundary wires together. The
// core never sees HTTP; this layer translates requests into core calls
// and core errors into statuses.
type Deps struct {
	Issuer     *token.Issuer
	Authorizer *relay.AuthorizationService
	Directory  accounts.Directory
	Gateway    relay.Gateway
	Events     *events.Producer // optional, nil disables auditing
}

type Server struct {
	router *mux.Router
	config config.Config
	deps   Deps
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Issuer == nil {
		return nil, errors.New("[Server.New] issuer is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("[Server.New] authorizer is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("[Server.New] account directory is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("[Server.New] relay gateway is required")
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		deps:   deps,
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	s.router.Use(s.recoveryMiddleware, s.loggingMiddleware)

	s.router.HandleFunc("/", s.HomeHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.HealthHandler()).Methods(http.MethodGet)

	s.router.HandleFunc("/generate-token", s.GenerateTokenHandler()).Methods(http.MethodPost)
	s.router.HandleFunc("/send-email", s.SendEmailHandler()).Methods(http.MethodPost)

	s.router.HandleFunc("/accounts", s.CreateAccountHandler()).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts", s.ListAccountsHandler()).Methods(http.MethodGet)
}
