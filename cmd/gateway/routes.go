package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roofpro-hub/config"
	"roofpro-hub/internal/gateway/clients"
	"roofpro-hub/internal/gateway/handlers"
	"roofpro-hub/internal/gateway/middleware"
	"roofpro-hub/internal/logging"
	"roofpro-hub/internal/metrics"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/utils"
)

// Paths reachable before the SOP gate is complete.
var gateExempt = []string{"/api/v1/me", "/api/v1/sops", "/api/v1/auth"}

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("gateway", cfg.LogLevel, cfg.Environment)

	tokens, err := utils.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to configure tokens: %v", err)
	}

	grpcClients, err := clients.NewGRPCClientsWithFallback(cfg.Services)
	if err != nil {
		log.Warnf("Some gRPC services may be unavailable: %v", err)
	}
	defer grpcClients.Close()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := newRouter(cfg.Gateway, grpcClients, tokens, log)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	port := ":" + cfg.Gateway.Port
	log.Infof("Starting server on port %s", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newRouter(cfg config.GatewayConfig, grpcClients *clients.GRPCClients, tokens *utils.Tokens, log *logrus.Entry) (*gin.Engine, error) {
	rateLimit, err := middleware.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	r.Use(serviceHealthMiddleware(grpcClients))

	r.GET("/health", healthCheckHandler(grpcClients))
	r.GET("/health/detailed", detailedHealthCheckHandler(grpcClients))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	userHandler := handlers.NewUserHTTPHandler(grpcClients.User)
	commissionHandler := handlers.NewCommissionHTTPHandler(grpcClients.Commissions)
	complianceHandler := handlers.NewComplianceHTTPHandler(grpcClients.Compliance)
	directoryHandler := handlers.NewDirectoryHTTPHandler(grpcClients.Directory)
	integrationsHandler := handlers.NewIntegrationsHTTPHandler(grpcClients.Integrations)

	userService := requireService(grpcClients.User != nil, "User service")
	commissionService := requireService(grpcClients.Commissions != nil, "Commissions service")
	complianceService := requireService(grpcClients.Compliance != nil, "Compliance service")
	directoryService := requireService(grpcClients.Directory != nil, "Directory service")
	integrationsService := requireService(grpcClients.Integrations != nil, "Integrations service")

	// --- Public API Group ---
	public := r.Group("/api/v1")
	public.Use(rateLimit)
	{
		auth := public.Group("/auth", userService)
		{
			auth.POST("/login", userHandler.Login)
		}
	}

	// Nil typed clients must stay nil interfaces so auth and the gate fail
	// closed.
	var gate middleware.GateChecker
	if grpcClients.Compliance != nil {
		gate = grpcClients.Compliance
	}
	var accounts middleware.AccountLookup
	if grpcClients.User != nil {
		accounts = grpcClients.User
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(rateLimit)
	protected.Use(middleware.JWTAuth(tokens, accounts))
	protected.Use(middleware.SOPGate(gate, log, gateExempt...))
	{
		me := protected.Group("/me")
		{
			me.GET("", userService, userHandler.Me)
			me.PUT("", userService, userHandler.UpdateMe)
			me.PUT("/password", userService, userHandler.ChangePassword)
			me.GET("/permissions", userService, userHandler.MyPermissions)
			me.GET("/sop-gate", complianceService, complianceHandler.MyGate)
		}

		users := protected.Group("/users")
		{
			users.POST("", userService, middleware.RequirePermission(permissions.UsersManage), userHandler.CreateUser)
			users.GET("", userService, middleware.RequirePermission(permissions.UsersManage), userHandler.ListUsers)
			users.GET("/:id", userService, userHandler.GetUser)
			users.PUT("/:id", userService, middleware.RequirePermission(permissions.UsersManage), userHandler.UpdateUser)
			users.POST("/:id/deactivate", userService, middleware.RequirePermission(permissions.UsersManage), userHandler.DeactivateUser)
			users.GET("/:id/permissions", userService, userHandler.GetUserPermissions)
			users.PUT("/:id/tier", commissionService, middleware.RequirePermission(permissions.TiersManage), commissionHandler.AssignTier)
			users.GET("/:id/sop-gate", complianceService, middleware.RequirePermission(permissions.ComplianceView, permissions.UsersManage), complianceHandler.UserGate)
		}

		documents := protected.Group("/commission-documents", commissionService)
		{
			documents.POST("/preview", middleware.RequirePermission(permissions.CommissionsCreate), commissionHandler.PreviewDocument)
			documents.POST("", middleware.RequirePermission(permissions.CommissionsCreate), commissionHandler.CreateDocument)
			documents.GET("", commissionHandler.ListDocuments)
			documents.GET("/:id", commissionHandler.GetDocument)
			documents.PUT("/:id", middleware.RequirePermission(permissions.CommissionsCreate), commissionHandler.UpdateDocument)
			documents.POST("/:id/submit", middleware.RequirePermission(permissions.CommissionsCreate), commissionHandler.SubmitDocument)
			documents.POST("/:id/review", middleware.RequirePermission(permissions.CommissionsApprove), commissionHandler.ReviewDocument)
			documents.GET("/:id/events", commissionHandler.ListStatusEvents)
		}

		submissions := protected.Group("/commissions", commissionService)
		{
			submissions.POST("", middleware.RequirePermission(permissions.CommissionsCreate), commissionHandler.CreateSubmission)
			submissions.GET("", commissionHandler.ListSubmissions)
			submissions.GET("/export", middleware.RequirePermission(permissions.CommissionsExport), commissionHandler.ExportSubmissions)
			submissions.GET("/:id", commissionHandler.GetSubmission)
			submissions.POST("/:id/transition", commissionHandler.TransitionSubmission)
			submissions.POST("/:id/pay", middleware.RequirePermission(permissions.CommissionsPay), commissionHandler.PaySubmission)
			submissions.GET("/:id/events", commissionHandler.ListStatusEvents)
		}

		tiers := protected.Group("/commission-tiers", commissionService)
		{
			tiers.GET("", commissionHandler.ListTiers)
			tiers.POST("", middleware.RequirePermission(permissions.TiersManage), commissionHandler.CreateTier)
			tiers.PUT("/:id", middleware.RequirePermission(permissions.TiersManage), commissionHandler.UpdateTier)
		}

		draws := protected.Group("/draws", commissionService)
		{
			draws.POST("", middleware.RequirePermission(permissions.DrawsManage), commissionHandler.CreateDraw)
			draws.GET("", middleware.RequirePermission(permissions.DrawsViewOwn, permissions.DrawsManage), commissionHandler.ListDraws)
			draws.GET("/balance/:rep_id", middleware.RequirePermission(permissions.DrawsViewOwn, permissions.DrawsManage), commissionHandler.GetDrawBalance)
		}

		protected.GET("/dashboard", commissionService, middleware.RequirePermission(permissions.DashboardView), commissionHandler.GetDashboard)

		sops := protected.Group("/sops", complianceService)
		{
			sops.GET("", complianceHandler.ListSOPs)
			sops.POST("", middleware.RequirePermission(permissions.SOPsManage), complianceHandler.UpsertSOP)
			sops.PUT("/:number", middleware.RequirePermission(permissions.SOPsManage), complianceHandler.UpsertSOP)
			sops.POST("/:number/acknowledge", complianceHandler.AcknowledgeSOP)
		}

		holds := protected.Group("/compliance/holds", complianceService)
		{
			holds.POST("", middleware.RequirePermission(permissions.ComplianceManage), complianceHandler.PlaceHold)
			holds.GET("", middleware.RequirePermission(permissions.ComplianceView, permissions.CommissionsPay), complianceHandler.ListHolds)
			holds.GET("/check", middleware.RequirePermission(permissions.ComplianceView, permissions.CommissionsPay), complianceHandler.CheckHolds)
			holds.POST("/:id/resolve", middleware.RequirePermission(permissions.ComplianceManage), complianceHandler.ResolveHold)
		}

		violations := protected.Group("/compliance/violations", complianceService)
		{
			violations.POST("", middleware.RequirePermission(permissions.ComplianceManage), complianceHandler.RecordViolation)
			violations.GET("", complianceHandler.ListViolations)
			violations.POST("/:id/resolve", middleware.RequirePermission(permissions.ComplianceManage), complianceHandler.ResolveViolation)
		}

		directory := protected.Group("/directory", directoryService)
		{
			view := middleware.RequirePermission(permissions.DirectoryView)
			manage := middleware.RequirePermission(permissions.DirectoryManage)

			directory.GET("/subcontractors", view, directoryHandler.ListSubcontractors)
			directory.GET("/subcontractors/expiring-insurance", view, directoryHandler.ListExpiringInsurance)
			directory.GET("/subcontractors/:id", view, directoryHandler.GetSubcontractor)
			directory.POST("/subcontractors", manage, directoryHandler.CreateSubcontractor)
			directory.PUT("/subcontractors/:id", manage, directoryHandler.UpdateSubcontractor)
			directory.PUT("/subcontractors/:id/status", manage, directoryHandler.SetSubcontractorStatus)

			directory.GET("/vendors", view, directoryHandler.ListVendors)
			directory.GET("/vendors/:id", view, directoryHandler.GetVendor)
			directory.POST("/vendors", manage, directoryHandler.CreateVendor)
			directory.PUT("/vendors/:id", manage, directoryHandler.UpdateVendor)
			directory.PUT("/vendors/:id/status", manage, directoryHandler.SetVendorStatus)

			directory.GET("/prospects", view, directoryHandler.ListProspects)
			directory.GET("/prospects/:id", view, directoryHandler.GetProspect)
			directory.POST("/prospects", middleware.RequirePermission(permissions.DirectoryManage, permissions.CommissionsCreate), directoryHandler.CreateProspect)
			directory.PUT("/prospects/:id", directoryHandler.UpdateProspect)
			directory.PUT("/prospects/:id/status", directoryHandler.SetProspectStatus)
		}

		training := protected.Group("/training", directoryService)
		{
			training.GET("", middleware.RequirePermission(permissions.TrainingView), directoryHandler.ListTraining)
			training.GET("/:id", middleware.RequirePermission(permissions.TrainingView), directoryHandler.GetTraining)
			training.POST("", middleware.RequirePermission(permissions.TrainingManage), directoryHandler.CreateTraining)
			training.PUT("/:id", middleware.RequirePermission(permissions.TrainingManage), directoryHandler.UpdateTraining)
			training.DELETE("/:id", middleware.RequirePermission(permissions.TrainingManage), directoryHandler.DeleteTraining)
		}

		integrations := protected.Group("/integrations", integrationsService)
		{
			integrations.GET("/crm/jobs", middleware.RequirePermission(permissions.CRMView), integrationsHandler.ListCRMJobs)
			integrations.GET("/crm/jobs/:job_number", middleware.RequirePermission(permissions.CRMView), integrationsHandler.GetCRMJob)
			integrations.POST("/crm/sync", middleware.RequirePermission(permissions.IntegrationsManage), integrationsHandler.SyncCRMNow)
			integrations.GET("/weather", integrationsHandler.GetForecast)
			integrations.POST("/email", middleware.RequirePermission(permissions.IntegrationsManage), integrationsHandler.SendEmail)
			integrations.GET("/email/logs", middleware.RequirePermission(permissions.IntegrationsManage), integrationsHandler.ListEmailLogs)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.APIResponse{Success: false, Message: "Route not found", Error: "NOT_FOUND"})
	})

	return r, nil
}

// requireService answers 503 for every route of a service the gateway could
// not dial.
func requireService(available bool, serviceName string) gin.HandlerFunc {
	unavailable := handlers.ServiceUnavailable(serviceName)
	return func(c *gin.Context) {
		if !available {
			unavailable(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
