package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "erpcore/api/swagger" // swagger docs
	"erpcore/internal/app"
	"erpcore/internal/config"
	"erpcore/internal/handler"
	"erpcore/internal/logger"
	"erpcore/internal/middleware"
	"erpcore/internal/permission"
	"erpcore/internal/repository"
	"erpcore/internal/service"
	"erpcore/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           ERP Core API
// @version         1.0
// @description     Multi-tenant ERP backend: roles and permissions, audit trail and tenant backup and restore.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.Server.Dev())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Roles.SeedDefaultRolesAndPermissions(ctx); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	tokens := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	auth := middleware.NewAuth(tokens, a.Store, !cfg.Server.Dev())
	userService := service.NewUserService(repository.NewUserRepository(a.DB), tokens)

	userHandler := handler.NewUserHandler(userService, auth)
	roleHandler := handler.NewRoleHandler(a.Roles)
	auditHandler := handler.NewAuditHandler(a.Audit)
	backupHandler := handler.NewBackupHandler(a.Backups(wsHub), a.Audit)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(logger.GinRequests(log), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// Backup progress for the caller's company
	router.GET("/ws",
		middleware.QueryToken(),
		auth.Authenticate(),
		middleware.RequireAnyPermission(permission.BackupsCreate, permission.BackupsRestore),
		wsHub.ServeWs,
	)

	public := router.Group("")
	authed := router.Group("", auth.Authenticate())
	userHandler.RegisterRoutes(public, authed)
	roleHandler.RegisterRoutes(authed)
	auditHandler.RegisterRoutes(authed)
	backupHandler.RegisterRoutes(authed)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
