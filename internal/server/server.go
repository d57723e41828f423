// Package server orchestrates all components: transport, dispatcher loop,
// designer integration, session events, optional DB and HTTP status.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/designer-bridge/internal/config"
	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/db"
	"github.com/morezero/designer-bridge/pkg/designer"
	"github.com/morezero/designer-bridge/pkg/dispatcher"
	"github.com/morezero/designer-bridge/pkg/events"
	"github.com/morezero/designer-bridge/pkg/mode"
	"github.com/morezero/designer-bridge/pkg/semver"
	"github.com/morezero/designer-bridge/pkg/transport"
)

const logPrefix = "server:server"

// sessionLister is the part of db.Repository the status pages use.
type sessionLister interface {
	ListSessions(ctx context.Context, limit int) ([]db.Session, error)
}

// Server is the designer-bridge orchestrator.
type Server struct {
	cfg        *config.Config
	sessionID  string
	detection  mode.Detection
	loop       *dispatcher.Loop
	store      *designer.Store
	sessions   sessionLister
	ws         *transport.WebSocketServer
	audit      *db.AsyncRecorder
	started    time.Time
	httpServer *http.Server
}

// SetupLogging installs the default slog handler for level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the bridge, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting designer-bridge (protocol %s)", logPrefix, semver.ProtocolVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Step 1: Detect embedded mode, once
	detection, err := detectMode(cfg)
	if err != nil {
		return err
	}
	embedded := detection.Embedded

	s := &Server{
		cfg:       cfg,
		sessionID: sessionID,
		detection: detection,
		store:     designer.NewStore(),
		started:   time.Now().UTC(),
	}

	// Step 2: Transport
	var (
		tr         transport.Transport
		nc         *comms.Conn
		publishers = events.MultiPublisher{events.NewCallbackPublisher(logSessionEvent)}
	)
	switch cfg.Transport {
	case config.TransportNATS:
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		tr = transport.NewEditorCommsTransport(nc, sessionID)
		publishers = append(publishers, events.NewCommsPublisher(nc, nil))
		slog.Info(fmt.Sprintf("%s - Session %s on %s / %s", logPrefix, sessionID,
			commsutil.BuildToEditorSubject(sessionID), commsutil.BuildToHostSubject(sessionID)))
	case config.TransportWebSocket:
		s.ws = transport.NewWebSocketServer()
		tr = s.ws
		slog.Info(fmt.Sprintf("%s - Session %s on websocket %s/ws", logPrefix, sessionID, cfg.Addr()))
	}

	// Step 3: Optional session audit store
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = openAuditStore(ctx, cfg)
		if err != nil {
			tr.Close()
			if nc != nil {
				nc.Close()
			}
			return err
		}
		repo := db.NewRepository(pool)
		s.sessions = repo
		// Written off the loop; routing never waits on Postgres.
		s.audit = db.NewAsyncRecorder(repo, cfg.AuditQueueSize)
		publishers = append(publishers, s.audit)
	}

	// Step 4: Dispatcher and its loop; listen before any handler exists
	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Transport:       tr,
		Embedded:        embedded,
		SessionID:       sessionID,
		ProtocolVersion: semver.ProtocolVersion,
		Publisher:       publishers,
	})
	s.loop = dispatcher.NewLoop(disp, 0)
	loopDone := make(chan error, 1)
	go func() { loopDone <- s.loop.Run(ctx) }()

	if err := tr.Listen(s.loop.Deliver); err != nil {
		cancel()
		<-loopDone
		s.closeResources(tr, nc, pool)
		return fmt.Errorf("%s - failed to listen: %w", logPrefix, err)
	}

	// Step 5: Designer integration registers its handlers on the loop
	opts := designer.Options{ReportInvalidLoad: cfg.ReportInvalidLoad}
	if err := s.loop.Go(func(ctx context.Context, d *dispatcher.Dispatcher) {
		designer.NewIntegration(d, s.store, opts).Register(ctx)
	}); err != nil {
		cancel()
		<-loopDone
		s.closeResources(tr, nc, pool)
		return fmt.Errorf("%s - failed to register designer: %w", logPrefix, err)
	}

	// Step 6: HTTP status server
	s.httpServer = &http.Server{Addr: cfg.Addr(), Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, cfg.Addr()))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - designer-bridge is up (embedded=%t)", logPrefix, embedded))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	if err := s.loop.Do(shutdownCtx, func(ctx context.Context, d *dispatcher.Dispatcher) { d.Close(ctx) }); err != nil {
		slog.Warn(fmt.Sprintf("%s - dispatcher close: %v", logPrefix, err))
	}
	cancel()
	<-loopDone
	s.closeResources(tr, nc, pool)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// detectMode runs the mode detector for this process. Its result is fixed
// for the process lifetime.
func detectMode(cfg *config.Config) (mode.Detection, error) {
	query, err := mode.ParseLaunchQuery(cfg.EditorLaunchURL)
	if err != nil {
		return mode.Detection{}, err
	}
	return mode.Explain(mode.Environment{Self: cfg.EditorInstanceID, Top: cfg.EditorTopID, Query: query}), nil
}

func logSessionEvent(_ context.Context, event *events.SessionEvent) error {
	slog.Info(fmt.Sprintf("%s - session %s %s (pending=%d kind=%s)", logPrefix, event.SessionID, event.Type, event.Pending, event.Kind))
	return nil
}

func openAuditStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if cfg.RunMigrations {
		migs, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migs); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return pool, nil
}

func (s *Server) closeResources(tr transport.Transport, nc *comms.Conn, pool *pgxpool.Pool) {
	if err := tr.Close(); err != nil {
		slog.Warn(fmt.Sprintf("%s - transport close: %v", logPrefix, err))
	}
	if s.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthCheckTimeout)
		if err := s.audit.Close(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - audit drain: %v", logPrefix, err))
		}
		cancel()
	}
	if nc != nil {
		nc.Drain()
	}
	if pool != nil {
		pool.Close()
	}
}
