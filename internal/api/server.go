// Package api provides the HTTP API server for Meshgate.
// It uses Echo framework to serve REST endpoints and WebSocket connections
// for service mesh and API gateway provisioning.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/vaporform/meshgate/internal/auth"
	"github.com/vaporform/meshgate/internal/config"
	"github.com/vaporform/meshgate/internal/deploy"
	"github.com/vaporform/meshgate/internal/discovery"
	"github.com/vaporform/meshgate/internal/loadbalancer"
	"github.com/vaporform/meshgate/internal/metrics"
	"github.com/vaporform/meshgate/internal/registry"
	"github.com/vaporform/meshgate/internal/validation"
	"github.com/vaporform/meshgate/models"
)

// Server represents the Meshgate API server.
type Server struct {
	echo       *echo.Echo
	store      *registry.Store
	dispatcher *deploy.Dispatcher
	resolver   *discovery.Resolver
	prober     *discovery.Prober
	selector   *loadbalancer.Selector
	validator  *validation.Validator
	config     *config.Config
	wsHub      *Hub // WebSocket hub for real-time lifecycle events
	authMiddle *auth.Middleware

	// refreshTokens maps usernames to hashed refresh tokens; rotated on use.
	refreshMu     sync.Mutex
	refreshTokens map[string]string
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Server) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates a new API server instance. The hub is passed in rather than
// created here so the deployment dispatcher's status hook can broadcast
// through it.
func New(cfg *config.Config, store *registry.Store, dispatcher *deploy.Dispatcher,
	resolver *discovery.Resolver, prober *discovery.Prober, hub *Hub) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	// Set custom error handler
	e.HTTPErrorHandler = HTTPErrorHandler

	// Create auth middleware
	authMiddle := auth.NewMiddleware(cfg)

	// Create server instance
	server := &Server{
		echo:          e,
		store:         store,
		dispatcher:    dispatcher,
		resolver:      resolver,
		prober:        prober,
		selector:      loadbalancer.NewSelector(),
		validator:     validation.New(),
		config:        cfg,
		wsHub:         hub,
		authMiddle:    authMiddle,
		refreshTokens: make(map[string]string),
	}

	// Start WebSocket hub in background
	go hub.Run()

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// StatusEventHook adapts a hub into a deployment status hook so mesh and
// gateway status changes reach WebSocket subscribers.
func StatusEventHook(hub *Hub) deploy.StatusHook {
	return func(kind, id string, status models.MeshStatus, detail string) {
		eventType := EventMeshStatus
		if kind == "gateway" {
			eventType = EventGatewayStatus
		}
		if err := hub.BroadcastEvent(LifecycleEvent{
			Type: eventType,
			Data: map[string]string{
				"id":     id,
				"status": string(status),
				"detail": detail,
			},
		}); err != nil {
			log.Printf("ERROR: Failed to broadcast status event: %v", err)
		}
	}
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)

	// Accept header validation middleware
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)

	// Prometheus metrics
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Service mesh routes
	meshes := v1.Group("/service-mesh")
	meshes.Use(ValidateQueryParams) // Validate query parameters for list operations
	meshes.GET("", s.listMeshes, s.authMiddle.RequireRead)
	meshes.GET("/:id", s.getMesh, ValidateIDFormat, s.authMiddle.RequireRead)
	meshes.GET("/:id/manifest", s.getMeshManifest, ValidateIDFormat, s.authMiddle.RequireRead)
	meshes.POST("", s.createMesh, s.authMiddle.RequireWrite)
	meshes.DELETE("/:id", s.deleteMesh, ValidateIDFormat, s.authMiddle.RequireWrite)

	// Mesh-scoped service routes
	meshes.GET("/:id/services", s.listServices, ValidateIDFormat, s.authMiddle.RequireRead)
	meshes.POST("/:id/services", s.registerService, ValidateIDFormat, s.authMiddle.RequireWrite)
	meshes.DELETE("/:id/services/:serviceId", s.deleteService, ValidateIDFormat, s.authMiddle.RequireWrite)
	meshes.GET("/:id/services/:serviceId/endpoint", s.selectEndpoint, ValidateIDFormat, s.authMiddle.RequireRead)

	// Mesh-scoped policy routes
	meshes.GET("/:id/policies", s.listPolicies, ValidateIDFormat, s.authMiddle.RequireRead)
	meshes.POST("/:id/policies", s.createPolicy, ValidateIDFormat, s.authMiddle.RequireWrite)

	// Flat policy listing across meshes
	v1.GET("/network-policies", s.listAllPolicies, s.authMiddle.RequireRead)

	// API gateway routes
	gateways := v1.Group("/api-gateway")
	gateways.GET("", s.listGateways, s.authMiddle.RequireRead)
	gateways.GET("/:id", s.getGateway, ValidateIDFormat, s.authMiddle.RequireRead)
	gateways.POST("", s.createGateway, s.authMiddle.RequireWrite)
	gateways.DELETE("/:id", s.deleteGateway, ValidateIDFormat, s.authMiddle.RequireWrite)
	gateways.GET("/:id/upstreams", s.listUpstreams, ValidateIDFormat, s.authMiddle.RequireRead)
	gateways.POST("/:id/upstreams", s.createUpstream, ValidateIDFormat, s.authMiddle.RequireWrite)
	gateways.GET("/:id/routes", s.listRoutes, ValidateIDFormat, s.authMiddle.RequireRead)
	gateways.POST("/:id/routes", s.createRoute, ValidateIDFormat, s.authMiddle.RequireWrite)

	// Authentication routes
	authRoutes := v1.Group("/auth")
	authRoutes.POST("/login", s.login)
	authRoutes.POST("/refresh", s.refresh)
	authRoutes.GET("/me", s.me, s.authMiddle.RequireAuth)

	// WebSocket routes
	ws := v1.Group("/ws")
	ws.GET("/events", s.handleWebSocket, s.authMiddle.RequireRead)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	fmt.Printf("Starting Meshgate API Server\n")
	fmt.Printf("   Address: http://%s\n", addr)
	fmt.Printf("   Debug: %v\n", s.config.Server.Debug)
	fmt.Println()

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	// Start server
	if s.config.Server.TLSEnabled {
		return s.echo.StartTLS(addr, s.config.Server.TLSCert, s.config.Server.TLSKey)
	}

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	fmt.Println("\nShutting down Meshgate API Server...")

	// Shutdown Echo server
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	fmt.Println("Server shutdown complete")
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "meshgate",
		"version": "0.1.0",
		"entities": map[string]interface{}{
			"meshes":   len(s.store.ListMeshes("")),
			"gateways": len(s.store.ListGateways("")),
		},
		"websocket_clients": s.wsHub.ClientCount(),
	})
}

// BroadcastLifecycleEvent broadcasts a lifecycle event to all WebSocket clients
func (s *Server) BroadcastLifecycleEvent(eventType LifecycleEventType, data interface{}) {
	s.debugLog("DEBUG: BroadcastLifecycleEvent called with type=%s", eventType)
	event := LifecycleEvent{
		Type: eventType,
		Data: data,
	}
	if err := s.wsHub.BroadcastEvent(event); err != nil {
		log.Printf("ERROR: Failed to broadcast event: %v", err)
	}
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
