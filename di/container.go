package di

import (
	"context"
	"fmt"
	"log"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"overlay-server/api"
	"overlay-server/api/overlayapi"
	"overlay-server/clock"
	"overlay-server/config"
	"overlay-server/coordinator"
	"overlay-server/dao/redis"
	"overlay-server/db"
	"overlay-server/overlay"
	"overlay-server/server"
	"overlay-server/server/handlers"
	services "overlay-server/service"
)

// Container holds all application dependencies.
type Container struct {
	Settings                *config.Settings
	RedisClient             db.RedisClient
	RedisOverlayDao         *redis.RedisOverlayDAO
	OverlayAPI              overlayapi.OverlayAPI
	OverlaySource           overlay.Source
	SessionService          *services.SessionService
	OverlayService          *services.OverlayService
	OverlayRefresherService *services.OverlayRefresherService
	SessionHandler          *handlers.SessionHandler
	OverlayHandler          *handlers.OverlayHandler
	MuxRouter               *mux.Router
	Router                  *server.Router
	OverlayHttpServer       *server.OverlayHttpServer
}

// NewContainer initializes and wires up all dependencies.
func NewContainer(settings *config.Settings) *Container {
	log.Printf("initializing container - env: %s, overlay source: %s", settings.Env, settings.OverlaySource)
	ctx := context.Background()

	// In mock mode nothing leaves the process
	var redisClient db.RedisClient
	if settings.OverlaySource == config.OVERLAY_SOURCE_MOCK {
		redisClient = db.NewMockRedisClient(ctx)
		log.Printf("Using in-memory redis")
	} else {
		redisInternalClient := goredis.NewClient(&goredis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
		geoClient := db.NewGeoRedisClient(ctx, redisInternalClient)
		if err := geoClient.Ping(); err != nil {
			panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		redisClient = geoClient
	}

	redisOverlayDao := redis.NewRedisOverlayDAO(redisClient)

	var overlayAPI overlayapi.OverlayAPI
	if settings.Env != "prod" || settings.OverlaySource == config.OVERLAY_SOURCE_MOCK {
		overlayAPI = overlayapi.NewOverlayApiClientMock(settings.OverlayMockPath)
		log.Printf("Using mock overlay api (%s)", settings.OverlayMockPath)
	} else {
		log.Printf("Using prod overlay api")
		overlayAPI = overlayapi.NewOverlayApiClient(api.NewHTTPClient(settings.OverlayAPIBaseURL))
		overlayAPI.SetAPIKey(settings.OverlayAPIKey)
	}

	// Sessions read from the local geo index unless told to go remote
	var source overlay.Source
	if settings.OverlaySource == config.OVERLAY_SOURCE_REMOTE {
		source = overlayAPI
	} else {
		source = overlay.NewStoreSource(redisOverlayDao)
	}

	fetcherCfg := overlay.DefaultFetcherConfig()
	fetcherCfg.RatePerSecond = settings.FetchRatePerSecond
	fetcherCfg.CacheTTL = settings.TileCacheTTL

	sessionService := services.NewSessionService(
		source,
		redisOverlayDao,
		coordinator.DefaultConfig(),
		fetcherCfg,
		clock.New(),
		settings.SessionIdleTimeout,
	)
	overlayService := services.NewOverlayService(redisOverlayDao)
	overlayRefresherService := services.NewOverlayRefresherService(redisOverlayDao, overlayAPI)

	sessionHandler := handlers.NewSessionHandler(sessionService)
	overlayHandler := handlers.NewOverlayHandler(overlayService)

	muxRouter := mux.NewRouter()
	router := server.NewRouter(sessionHandler, overlayHandler, muxRouter)
	overlayHttpServer := server.NewOverlayHttpServer(router, muxRouter, settings.ServerAddr, config.SERVER_SHUTDOWN_TIMEOUT)

	return &Container{
		Settings:                settings,
		RedisClient:             redisClient,
		RedisOverlayDao:         redisOverlayDao,
		OverlayAPI:              overlayAPI,
		OverlaySource:           source,
		SessionService:          sessionService,
		OverlayService:          overlayService,
		OverlayRefresherService: overlayRefresherService,
		SessionHandler:          sessionHandler,
		OverlayHandler:          overlayHandler,
		MuxRouter:               muxRouter,
		Router:                  router,
		OverlayHttpServer:       overlayHttpServer,
	}
}

// IngestsFeatures reports whether sessions read from the local store, which
// the refresher has to keep filled.
func (c *Container) IngestsFeatures() bool {
	return c.Settings.OverlaySource != config.OVERLAY_SOURCE_REMOTE
}
