package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/opsimate/opsimate-core/internal/alert"
	"github.com/opsimate/opsimate-core/internal/audit"
	"github.com/opsimate/opsimate-core/internal/auth"
	"github.com/opsimate/opsimate-core/internal/infrastructure/config"
	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
	"github.com/opsimate/opsimate-core/internal/infrastructure/logging"
	"github.com/opsimate/opsimate-core/internal/secret"
	"github.com/opsimate/opsimate-core/internal/service"
	"github.com/opsimate/opsimate-core/internal/view"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HTTP server timeouts.
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 60 * time.Second
)

// generatedSecretBytes is the size of the per-process JWT secret used when
// none is configured.
const generatedSecretBytes = 32

// Deps holds the dependencies required by the API server.
//
// Repositories left nil are built on DB. Secrets defaults to a store under
// security.private_keys_path.
type Deps struct {
	Config  *config.Config
	Logger  *logging.Logger
	DB      database.Handle
	Version string

	Users    auth.UserRepository
	Audit    audit.Repository
	Services service.Repository
	Alerts   alert.Repository
	Views    view.Repository
	Secrets  *secret.Store

	// AllowedOrigins restricts CORS. Empty allows every origin.
	AllowedOrigins []string
}

// Server is the HTTP API server for OpsiMate Core.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg            *config.Config
	logger         *logging.Logger
	db             database.Handle
	version        string
	jwtSecret      []byte
	tokenTTL       time.Duration
	allowedOrigins []string

	userRepo    auth.UserRepository
	auditRepo   audit.Repository
	serviceRepo service.Repository
	alertRepo   alert.Repository
	viewRepo    view.Repository
	secrets     *secret.Store

	auditCh chan *audit.AuditLog

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // stops the audit writer
	wg       sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. When no JWT secret
// is configured a random one is generated and a warning is logged; tokens
// then do not survive a restart.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	s := &Server{
		cfg:            deps.Config,
		logger:         deps.Logger,
		db:             deps.DB,
		version:        deps.Version,
		tokenTTL:       deps.Config.AccessTokenTTL(),
		allowedOrigins: deps.AllowedOrigins,
		userRepo:       deps.Users,
		auditRepo:      deps.Audit,
		serviceRepo:    deps.Services,
		alertRepo:      deps.Alerts,
		viewRepo:       deps.Views,
		secrets:        deps.Secrets,
		auditCh:        make(chan *audit.AuditLog, auditChanSize),
	}

	if s.userRepo == nil {
		s.userRepo = auth.NewUserRepository(deps.DB)
	}
	if s.auditRepo == nil {
		s.auditRepo = audit.NewSQLRepository(deps.DB)
	}
	if s.serviceRepo == nil {
		s.serviceRepo = service.NewSQLRepository(deps.DB)
	}
	if s.alertRepo == nil {
		s.alertRepo = alert.NewSQLRepository(deps.DB)
	}
	if s.viewRepo == nil {
		s.viewRepo = view.NewSQLRepository(deps.DB)
	}
	if s.secrets == nil {
		s.secrets = secret.NewStore(deps.DB, deps.Config.Security.PrivateKeysPath, deps.Logger)
	}

	if deps.Config.Security.JWTSecret != "" {
		s.jwtSecret = []byte(deps.Config.Security.JWTSecret)
	} else {
		s.jwtSecret = make([]byte, generatedSecretBytes)
		if _, err := rand.Read(s.jwtSecret); err != nil {
			return nil, fmt.Errorf("generating JWT secret: %w", err)
		}
		s.logger.Warn("no JWT secret configured, using a per-process secret; tokens will not survive a restart")
	}

	return s, nil
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address, starts the audit writer and serves
// requests in a background goroutine. Binding errors are returned
// directly.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ServerAddress())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ServerAddress(), err)
	}
	s.listener = ln

	s.startAuditWriter(ctx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// flushes queued audit entries and waits for background goroutines.
func (s *Server) Close() error {
	var shutdownErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		shutdownErr = s.server.Shutdown(ctx)
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if shutdownErr != nil {
		return fmt.Errorf("shutting down API server: %w", shutdownErr)
	}
	return nil
}

// startAuditWriter launches the goroutine that persists audit entries.
// It outlives ctx and stops only in Close, so entries queued during
// shutdown are still written.
func (s *Server) startAuditWriter(ctx context.Context) {
	var writerCtx context.Context
	writerCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drainAuditLog(writerCtx)
	}()
}
