package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/domain"
	"board-api/storage"
)

func main() {
	debug := false
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		debug = true
		log.SetLevel(log.DebugLevel)
	}

	cfg := storage.Config{
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		ColumnsTable:     os.Getenv("COLUMNS_TABLE"),
		IssuesTable:      os.Getenv("ISSUES_TABLE"),
		SprintsTable:     os.Getenv("SPRINTS_TABLE"),
		MembersTable:     os.Getenv("MEMBERS_TABLE"),
		EventsQueue:      os.Getenv("BOARD_EVENTS_QUEUE"),
	}
	if cfg.ConnectionString == "" || cfg.ColumnsTable == "" || cfg.IssuesTable == "" || cfg.SprintsTable == "" || cfg.MembersTable == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(storage.RedisOptions(redisConn))

	cache := storage.NewCache(store, rc, envDuration("BOARD_CACHE_TTL", 5*time.Minute))
	boards := domain.NewBoardService(
		cache,
		storage.NotifierFactory(rc),
		store,
		envDuration("MOVE_PERSIST_TIMEOUT", domain.DefaultPersistTimeout),
		envDuration("BOARD_SESSION_TTL", domain.DefaultSessionTTL),
	)
	deduper := api.NewRedisDeduper(rc, envDuration("DEDUPER_TTL", 24*time.Hour))

	auth, err := newAuth()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.IdempotencyKeyHeader},
	}))
	e.Use(api.GzipRequestMiddleware())
	if debug {
		pprof.Register(e)
	}

	api.Register(e, api.Deps{
		Boards:        boards,
		Auth:          auth,
		Deduper:       deduper,
		Notifications: notificationSource(rc),
		Health:        api.PingFunc(func(ctx context.Context) error { return rc.Ping(ctx).Err() }),
		Logger:        log.StandardLogger(),
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func newAuth() (*api.Auth, error) {
	if api.SharedSecretMode() {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	tenant := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || tenant == "" {
		return nil, fmt.Errorf("missing Auth0 config")
	}
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", tenant), keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, audience, "https://"+tenant+"/")
}

func notificationSource(rc *redis.Client) api.NotificationSource {
	return func(ctx context.Context, userID, projectID string, deliver func(domain.Notification)) {
		storage.SubscribeNotifications(ctx, rc, userID, projectID, deliver)
	}
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}
