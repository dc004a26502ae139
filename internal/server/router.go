package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/config"
	"github.com/Tehnologistika/GdeGruz/internal/curators"
	"github.com/Tehnologistika/GdeGruz/internal/documents"
	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/infra"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/security"
	"github.com/Tehnologistika/GdeGruz/internal/server/handlers"
	"github.com/Tehnologistika/GdeGruz/internal/server/mw"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
	"github.com/Tehnologistika/GdeGruz/internal/store"
	"github.com/Tehnologistika/GdeGruz/internal/telegram"
	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

// NewRouter собирает HTTP-слой: репозитории, движок рейсов и маршруты.
// Уведомления и брокер приходят извне: их жизненным циклом владеет main.
func NewRouter(cfg config.Config, deps *infra.Infra, logger *zap.Logger, notify *telegram.BotClient, pub trips.Publisher) http.Handler {
	if cfg.AppEnv == "local" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger(logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"*"},
	}))

	r.GET("/health", func(c *gin.Context) {
		resp.OK(c, gin.H{"status": "ok"})
	})

	driversRepo := drivers.NewRepo(deps.PG)
	curatorsRepo := curators.NewRepo(deps.PG)
	tripsRepo := trips.NewRepo(deps.PG, cfg.Trips.NumberPrefix)
	eventLog := trips.NewEventLog(deps.PG, logger)
	docsRepo := documents.NewRepo(deps.PG, eventLog, logger)
	pointsRepo := locations.NewRepo(deps.PG)

	jwtm := security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTAccessTTL, cfg.Security.JWTRefreshTTL)
	refreshStore := store.NewRefreshStore(deps.Redis, cfg.Security.JWTRefreshTTL)

	var notifier trips.Notifier
	if notify != nil {
		notifier = notify
	}
	engine := trips.NewEngine(logger, tripsRepo, eventLog, driversRepo, docsRepo, notifier, pub, cfg.Security.CuratorIDs)

	authH := handlers.NewAuthHandler(logger, curatorsRepo, jwtm, refreshStore)
	tripsH := handlers.NewTripsHandler(logger, engine, tripsRepo, eventLog, docsRepo, pointsRepo)
	escalations := store.NewEscalationStore(deps.Redis, cfg.Scheduler.EscalateCooldown)
	ingestH := handlers.NewIngestHandler(logger, engine, tripsRepo, driversRepo, docsRepo, pointsRepo, escalations)
	driversH := handlers.NewDriversHandler(logger, driversRepo, pointsRepo)
	docsH := handlers.NewDocumentsHandler(logger, docsRepo)

	v1 := r.Group("/v1")
	if cfg.Security.RateLimitRPS > 0 {
		v1.Use(mw.RateLimit(deps.Redis, cfg.Security.RateLimitRPS))
	}

	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/refresh", authH.Refresh)
	v1.POST("/auth/logout", authH.Logout)

	// Дашборд: чтение любой авторизованной ролью.
	authed := v1.Group("")
	authed.Use(mw.RequireAuth(jwtm))
	authed.GET("/trips", tripsH.List)
	authed.GET("/trips/:id", tripsH.Get)
	authed.GET("/trips/number/:number", tripsH.GetByNumber)
	authed.GET("/trips/:id/events", tripsH.Events)
	authed.GET("/trips/:id/documents", tripsH.Documents)
	authed.GET("/trips/:id/summary", tripsH.Summary)
	authed.GET("/drivers", driversH.List)
	authed.GET("/drivers/:id", driversH.Get)
	authed.GET("/drivers/phone/:phone", driversH.GetByPhone)
	authed.GET("/drivers/:id/location", driversH.LastLocation)
	authed.GET("/documents", docsH.List)
	authed.GET("/documents/:id", docsH.Get)
	// локальные копии документов (file_path задаётся относительно корня)
	authed.Static("/files", cfg.Storage.Root)

	// Мутации — только кураторы.
	curatorOnly := authed.Group("")
	curatorOnly.Use(mw.RequireCurator())
	curatorOnly.POST("/trips", tripsH.Create)
	curatorOnly.PATCH("/trips/:id", tripsH.Update)
	curatorOnly.POST("/trips/:id/advance", tripsH.Advance)
	curatorOnly.POST("/trips/:id/cancel", tripsH.Cancel)
	curatorOnly.POST("/trips/:id/request-location", tripsH.RequestLocation)
	curatorOnly.PATCH("/documents/:id", docsH.Rebind)
	curatorOnly.DELETE("/documents/:id", docsH.Delete)
	curatorOnly.DELETE("/drivers/:id", driversH.Purge)
	curatorOnly.DELETE("/drivers/:id/locations", driversH.ClearLocations)

	// Транспортный слой (бот): общий клиентский токен вместо JWT.
	ingest := v1.Group("/ingest")
	ingest.Use(mw.RequireClientToken(cfg))
	ingest.POST("/phone", ingestH.SharePhone)
	ingest.POST("/name", ingestH.SetName)
	ingest.POST("/location", ingestH.ShareLocation)
	ingest.POST("/action", ingestH.DriverAction)
	ingest.POST("/documents", ingestH.UploadDocument)
	ingest.POST("/tracking", ingestH.Tracking)
	ingest.GET("/trips/active", ingestH.ActiveTrip)

	return r
}
