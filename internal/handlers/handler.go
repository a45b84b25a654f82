package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pellet_stove/internal/logger"
	"pellet_stove/internal/service"
)

// Options tunes the router beyond the services it serves.
type Options struct {
	// CORSOrigins lists the browser origins allowed to call the API.
	// Empty disables CORS handling.
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	return &Handler{services: services, log: log, opts: opts}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(h.opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Status push over WebSocket, same port.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authenticate)
	{
		h.registerStoveRoutes(api)
		h.registerScheduleRoutes(api)
		h.registerLogRoutes(api)
		h.registerDiagRoutes(api)
		h.registerSimRoutes(api)
	}
}

// Reads are open to every signed-in user; anything that reaches the board
// needs the operator role.
func (h *Handler) registerStoveRoutes(api *gin.RouterGroup) {
	stove := api.Group("/stove")
	{
		stove.GET("/state", h.getState)
		stove.POST("/start", h.requireOperator, h.startStove)
		stove.POST("/shutdown", h.requireOperator, h.shutdownStove)
		// Body example: {"level":3}
		stove.POST("/power", h.requireOperator, h.setPower)
		// Body example: {"minutes":90}; 0 disables the timer
		stove.POST("/timer", h.requireOperator, h.setTimer)
	}
}

func (h *Handler) registerScheduleRoutes(api *gin.RouterGroup) {
	schedule := api.Group("/schedule")
	{
		schedule.GET("", h.getSchedule)
		schedule.GET("/summary", h.getScheduleSummary)
		schedule.PUT("/:index", h.requireOperator, h.putScheduleEntry)
		schedule.POST("/enabled", h.requireOperator, h.setSchedulerEnabled)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

func (h *Handler) registerDiagRoutes(api *gin.RouterGroup) {
	diag := api.Group("/diag", h.requireOperator)
	{
		diag.GET("/:kind/:addr", h.probe)
	}
}

func (h *Handler) registerSimRoutes(api *gin.RouterGroup) {
	sim := api.Group("/sim", h.requireOperator)
	{
		sim.POST("/state", h.simForceState)
		sim.POST("/power", h.simForcePower)
		sim.POST("/ambient", h.simForceAmbient)
		sim.POST("/failure", h.simSetFailure)
	}
}
