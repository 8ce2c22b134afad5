package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/api/handlers"
	"github.com/Wikid82/entitled/internal/api/middleware"
	"github.com/Wikid82/entitled/internal/config"
	"github.com/Wikid82/entitled/internal/envelope"
	"github.com/Wikid82/entitled/internal/metrics"
	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/services"
	"github.com/Wikid82/entitled/internal/totp"
)

// Services bundles the wired service layer so callers can reach it after
// registration, e.g. to drain notifications on shutdown.
type Services struct {
	Audit         *services.AuditService
	Auth          *services.AuthService
	Requests      *services.AccessRequestService
	Privilege     *services.PrivilegeService
	Vault         *services.VaultService
	Notifications *services.NotificationService
}

// NewServices wires the service layer from configuration. An unusable
// encryption key is an error here, before anything is served.
func NewServices(db *gorm.DB, cfg config.Config) (*Services, error) {
	cipher, err := envelope.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	verifier := totp.NewVerifier(cfg.TOTPIssuer)

	audit := services.NewAuditService(db)
	auth := services.NewAuthService(db, cfg, cipher, verifier, audit)
	notifier := services.NewNotificationService(cfg.NotifyURLs)

	privilege := services.NewPrivilegeService(db, audit, auth, services.PrivilegeOptions{
		Duration:          cfg.SessionDuration,
		EnforceAccessKind: cfg.EnforceAccessKind,
	})

	return &Services{
		Audit:         audit,
		Auth:          auth,
		Requests:      services.NewAccessRequestService(db, audit, notifier),
		Privilege:     privilege,
		Vault:         services.NewVaultService(db, cipher, audit),
		Notifications: notifier,
	}, nil
}

// Register wires up API routes and the metrics endpoint.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*Services, error) {
	svc, err := NewServices(db, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")

	authHandler := handlers.NewAuthHandler(svc.Auth)
	vaultHandler := handlers.NewVaultHandler(svc.Vault, svc.Privilege)
	requestHandler := handlers.NewRequestHandler(svc.Requests)
	auditHandler := handlers.NewAuditHandler(svc.Audit)

	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(svc.Auth))
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.GET("/auth/mfa/provisioning", authHandler.MFAProvisioning)

		employee := middleware.RequireRole(models.RoleEmployee)
		admin := middleware.RequireRole(models.RoleAdmin)
		vaultUser := middleware.RequireRole(models.RoleEmployee, models.RoleAdmin)

		protected.GET("/vault/items", vaultUser, vaultHandler.ListItems)
		protected.POST("/vault/items", admin, vaultHandler.CreateItem)
		protected.DELETE("/vault/items/:id", admin, vaultHandler.DeleteItem)
		protected.POST("/vault/access", vaultUser, vaultHandler.Access)
		protected.GET("/vault/sessions/:vault_item_id", vaultHandler.CheckSession)

		protected.POST("/requests", employee, requestHandler.Create)
		protected.GET("/requests/mine", employee, requestHandler.Mine)
		protected.GET("/requests/pending", admin, requestHandler.Pending)
		protected.GET("/requests/:id", vaultUser, requestHandler.Get)
		protected.POST("/requests/decide", admin, requestHandler.Decide)

		protected.GET("/admins", employee, authHandler.Admins)

		protected.GET("/audit/logs", middleware.RequireRole(models.RoleAuditor), auditHandler.List)
	}

	return svc, nil
}
