package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mobus-dev/mobus-core/internal/infrastructure/config"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/logging"
	"github.com/mobus-dev/mobus-core/internal/link"
	"github.com/mobus-dev/mobus-core/internal/messaging"
	"github.com/mobus-dev/mobus-core/internal/notify"
	"github.com/mobus-dev/mobus-core/internal/pairing"
	"github.com/mobus-dev/mobus-core/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// LinkService is the station link as seen by the API.
type LinkService interface {
	Status() link.Status
	ConfigureAndConnect(ssid, password string) error
	ConnectToAnySaved(ctx context.Context, perCandidate time.Duration) error
}

// MessagingService is the messaging runtime as seen by the API.
type MessagingService interface {
	Status() messaging.Status
	Pause()
	Resume() error
	UpdatePrincipal(principalID string) error
	Publish(topic string, payload []byte, qos byte, retain bool) error
	AddListener(topic string) (int, error)
	RemoveListener(id int)
	Listeners() []messaging.ListenerInfo
	PopPrimary() (string, bool)
	PopListener(id int) (string, bool)
}

// PairingService is the pairing channel as seen by the API.
type PairingService interface {
	Ready() bool
	BeginSession(ctx context.Context, ttl time.Duration) (pairing.Session, error)
	CurrentSession(ctx context.Context) (pairing.Session, bool)
	EndSession(ctx context.Context) error
}

// NotificationService raises and reports notifications.
type NotificationService interface {
	HandleExternalMessage()
	ConsumeExternalHint() bool
	Stats() notify.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config           config.APIConfig
	Logger           *logging.Logger
	Link             LinkService
	Credentials      store.Credentials
	Settings         store.KV
	Messaging        MessagingService
	Pairing          PairingService
	Notifications    NotificationService
	CandidateTimeout time.Duration
	DeviceID         string
	Version          string
}

// Server is the local HTTP control API.
//
// It is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	link    LinkService
	creds   store.Credentials
	kv      store.KV
	msg     MessagingService
	pairing PairingService
	notify  NotificationService

	candidateTimeout time.Duration
	deviceID         string
	version          string

	server   *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
	bg       sync.WaitGroup
	scanning sync.Mutex // serialises connect-saved requests
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, link and messaging are required; pairing and
//     notifications are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil || deps.Credentials == nil {
		return nil, fmt.Errorf("link manager and credential store are required")
	}
	if deps.Messaging == nil || deps.Settings == nil {
		return nil, fmt.Errorf("messaging runtime and settings store are required")
	}
	if deps.CandidateTimeout <= 0 {
		deps.CandidateTimeout = link.DefaultCandidateTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:              deps.Config,
		logger:           deps.Logger,
		link:             deps.Link,
		creds:            deps.Credentials,
		kv:               deps.Settings,
		msg:              deps.Messaging,
		pairing:          deps.Pairing,
		notify:           deps.Notifications,
		candidateTimeout: deps.CandidateTimeout,
		deviceID:         deps.DeviceID,
		version:          deps.Version,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops background work and gracefully shuts down the listener.
func (s *Server) Close() error {
	s.cancel()
	defer s.bg.Wait()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// background runs fn detached from the request, bounded by Close.
func (s *Server) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.ctx)
	}()
}
