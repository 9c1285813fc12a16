package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"projectflow/backend/internal/api"
	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/mcp"
	"projectflow/backend/internal/services"
	"projectflow/backend/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var skipMigrate bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP server",
		Long: `Run the REST API under /api/v1, the MCP server under /mcp and the
Swagger UI under /docs.

Examples:
  # Serve with ./config.yaml
  projectflow serve

  # In-memory store, no database required
  DB_DRIVER=memory ENVIRONMENT=DEV DEV_MODE_BYPASS=true projectflow serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply the database schema on startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"okta_client_id", cfg.Auth.ClientID,
		"okta_domain", cfg.Auth.OktaDomain,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
		"strict_stages", cfg.Engine.StrictStages,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID; PKCE login from /docs will fail if the backend is a confidential client")
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ExportInterval: cfg.Telemetry.ExportInterval,
		ServiceName:    "projectflow",
		ServiceVersion: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := services.NewMetrics(nil)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger, !skipMigrate)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier services.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notifier = services.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
		logger.Info("Transition notifications enabled", "webhook_url", cfg.Notifier.WebhookURL)
	}

	workflows := services.NewWorkflowService(store, store, logger)
	instances := services.NewInstanceService(store, cfg.Engine, notifier, metrics, logger)
	rules := services.NewRuleService(store, metrics, logger)
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, store, logger.Named("auth"))
	if err != nil {
		return err
	}

	e := api.NewEcho(logger)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiServer := api.NewServer(workflows, instances, rules, store, logger)
	apiServer.Mount(e, echo.WrapMiddleware(authz.RequireAuth), echo.WrapMiddleware(auth.RequireWorkflowScope))
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(workflows, instances, rules)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer(), authz.RequireAuth)
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
	}

	// let in-flight transition notifications finish
	instances.Close()
	logger.Info("Server stopped gracefully")
	return nil
}
