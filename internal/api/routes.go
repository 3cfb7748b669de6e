package api

import (
	"guardian-api/internal/config"
	"guardian-api/internal/metrics"
	"guardian-api/internal/middleware"
	"guardian-api/internal/models"
	"guardian-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Handler holds everything the HTTP handlers need
type Handler struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client // nil when Redis is not configured

	Licenses      *services.LicenseService
	Keys          *services.KeyService
	Payments      *services.PaymentService
	Moderation    *services.ModerationService
	Guilds        *services.GuildService
	Tickets       *services.TicketService
	CustomBots    *services.CustomBotService
	AutoResponses *services.AutoResponseService
	Stats         *services.StatsService
	Identity      services.IdentityVerifier
}

// NewEngine builds the gin engine with the standard middleware and all routes
func NewEngine(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(h.Config.CORSOrigins))

	SetupRoutes(r, h)
	return r
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	// Health checks
	r.GET("/health", h.Health)
	r.GET("/api/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)
	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Bot and command API (shared admin key)
	admin := api.Group("")
	admin.Use(middleware.AdminAuth(h.Config.AdminAPIKey))
	{
		licenses := admin.Group("/licenses")
		{
			licenses.POST("/redeem", h.RedeemKey)
			licenses.GET("/:user_id", h.GetLicense)
			licenses.GET("/:user_id/access", h.CheckAccess)
			licenses.POST("/:user_id/usage", h.RecordUsage)
			licenses.POST("/:user_id/suspend", h.SuspendLicense)
			licenses.POST("/:user_id/reactivate", h.ReactivateLicense)
		}

		keys := admin.Group("/keys")
		{
			keys.POST("", h.GenerateKey)
			keys.GET("", h.ListKeys)
		}

		payments := admin.Group("/payments")
		{
			payments.POST("", h.SubmitPayment)
			payments.GET("", h.ListPayments)
			payments.POST("/btc/verify", h.VerifyBitcoinPayment)
			payments.POST("/paypal", h.SubmitPayPalClaim)
			payments.GET("/:tx_id", h.GetPayment)
			payments.POST("/:tx_id/confirm", h.ConfirmPayment)
			payments.POST("/:tx_id/fail", h.FailPayment)
		}

		admin.GET("/stats/sales", h.SalesStats)

		guilds := admin.Group("/guilds/:guild_id")
		{
			guilds.GET("", h.GetGuild)
			guilds.GET("/auto-responses", h.ListAutoResponses)

			guilds.POST("/warnings", h.AddWarning)
			guilds.GET("/warnings/:user_id", h.GetWarnings)
			guilds.DELETE("/warnings/:user_id", h.ClearWarnings)

			guilds.POST("/mutes", h.AddMute)
			guilds.POST("/mutes/sweep", h.SweepMutes)
			guilds.GET("/mutes/:user_id", h.GetMuteStatus)
			guilds.DELETE("/mutes/:user_id", h.RemoveMute)

			guilds.POST("/actions", h.LogAction)
			guilds.GET("/actions", h.ListActions)

			guilds.POST("/anti-raid", h.LogAntiRaidEvent)
			guilds.GET("/anti-raid", h.ListAntiRaidEvents)
		}

		tickets := admin.Group("/tickets")
		{
			tickets.POST("", h.CreateTicket)
			tickets.GET("", h.ListUserTickets)
			tickets.GET("/open", h.ListOpenTickets)
			tickets.GET("/:ticket_id", h.GetTicket)
			tickets.POST("/:ticket_id/messages", h.AddTicketMessage)
			tickets.POST("/:ticket_id/assign", h.AssignTicket)
			tickets.POST("/:ticket_id/close", h.CloseTicket)
		}

		customBots := admin.Group("/custom-bots")
		{
			customBots.GET("", h.ListCustomBots)
			customBots.GET("/:deployment_id", h.GetCustomBot)
			customBots.PATCH("/:deployment_id", h.UpdateCustomBot)
			customBots.POST("/:deployment_id/heartbeat", h.CustomBotHeartbeat)
		}
	}

	// Web dashboard (Discord OAuth bearer token)
	dashboard := api.Group("/dashboard")
	dashboard.Use(middleware.DashboardAuth(h.Identity))
	dashboard.Use(middleware.RequireTier(h.Licenses, h.Config.IsOwner, models.TierBasic))
	{
		dashboard.GET("/server/:guild_id", h.GetServerConfig)
		dashboard.POST("/server/:guild_id", h.UpdateServerConfig)

		dashboard.GET("/auto-responses/:guild_id", h.ListAutoResponses)
		dashboard.POST("/auto-responses/:guild_id", h.AddAutoResponse)
		dashboard.DELETE("/auto-responses/:guild_id/:trigger", h.RemoveAutoResponse)

		dashboard.GET("/custom", h.ListMyCustomBots)
		dashboard.GET("/custom/:deployment_id", h.GetMyCustomBot)
	}
}
