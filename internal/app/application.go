package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"chatrelay/internal/api"
	"chatrelay/internal/archive"
	"chatrelay/internal/config"
	"chatrelay/internal/hub"
	"chatrelay/internal/messaging"
	"chatrelay/internal/router"
	"chatrelay/internal/telemetry"
	"chatrelay/internal/websocket"
	"chatrelay/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	archive    interfaces.Archiver
	registry   *websocket.Registry
	chatHub    *hub.Hub
	httpServer *http.Server
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Archive → Registry → Router → Hub → API → WebSocket → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Optional transcript archive
	// TECHNICAL DISCOVERY: Leave the interface nil when disabled; a typed nil
	// *archive.Manager would pass the hub's nil checks
	var archiver interfaces.Archiver
	if cfg.Archive.Path != "" {
		archiveConfig := archive.DefaultConfig(cfg.Archive.Path)
		archiveConfig.MaxConnections = cfg.Archive.MaxConnections
		archiveConfig.WriteBuffer = cfg.Archive.WriteBuffer
		manager, err := archive.NewManager(archiveConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		archiver = manager
		log.Printf("Archive enabled at %s", cfg.Archive.Path)
	}

	closeArchive := func() {
		if archiver != nil {
			_ = archiver.Close()
		}
	}

	// STEP 2: WebSocket registry for connection tracking
	registry := websocket.NewRegistry()

	// STEP 3: Chat router owning all chat state
	chatRouter, err := router.New(cfg.Chat.JoinHistory,
		messaging.Options{
			AllowedReactions:   cfg.Chat.AllowedReactions,
			MaxAttachmentBytes: cfg.Chat.MaxAttachmentBytes,
		},
		router.Options{
			SnapshotHistory:   cfg.Chat.SnapshotHistory,
			PageDefault:       cfg.Chat.PageDefault,
			PageMax:           cfg.Chat.PageMax,
			MessagesPerMinute: cfg.Chat.MessagesPerMinute,
		})
	if err != nil {
		closeArchive()
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	// STEP 4: Hub serializing commands through the router
	chatHub, err := hub.NewHub(registry, chatRouter, archiver, hub.Options{
		CommandBuffer: cfg.Chat.CommandBuffer,
	})
	if err != nil {
		closeArchive()
		return nil, fmt.Errorf("failed to initialize hub: %w", err)
	}

	// STEP 5: Read-only HTTP API
	apiServer := api.NewServer(chatHub, archiver, registry)

	// STEP 6: WebSocket handler feeding the hub
	wsHandler, err := websocket.NewHandler(registry, chatHub, websocket.Options{
		SendBuffer:      cfg.WebSocket.SendBuffer,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PongWait:        cfg.WebSocket.PongWait,
		PingInterval:    cfg.WebSocket.PingInterval,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	})
	if err != nil {
		closeArchive()
		return nil, fmt.Errorf("failed to initialize WebSocket handler: %w", err)
	}

	// STEP 7: HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		archive:    archiver,
		registry:   registry,
		chatHub:    chatHub,
		httpServer: httpServer,
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		if app.archive != nil {
			_ = app.archive.Close()
		}
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the hub and the HTTP server on ln until ctx is cancelled or the
// server fails, then shuts everything down
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	shutdownTracing, err := telemetry.Setup(ctx, app.config.Telemetry.Endpoint, app.config.Telemetry.ServiceName)
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	}

	// FUNCTIONAL DISCOVERY: The hub outlives ctx so disconnects raised while
	// the HTTP server drains are still applied
	if err := app.chatHub.Start(context.WithoutCancel(ctx)); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start chat hub: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Chat relay listening on %s", ln.Addr())
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.HTTP.ShutdownTimeout)
		defer cancel()
		app.stop(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// stop shuts down in reverse dependency order: HTTP → sockets → Hub → Archive
func (app *Application) stop(ctx context.Context) {
	log.Printf("Shutting down chat relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// TECHNICAL DISCOVERY: Hijacked WebSocket connections survive Shutdown
	app.registry.CloseAll()

	if err := app.chatHub.Stop(); err != nil {
		log.Printf("Chat hub shutdown error: %v", err)
	}

	if app.archive != nil {
		if err := app.archive.Close(); err != nil {
			log.Printf("Archive shutdown error: %v", err)
		}
	}

	log.Printf("Chat relay shutdown complete")
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// GetAddr returns the configured listen address
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
