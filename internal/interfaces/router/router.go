package router

import (
	"context"
	"net/http"
	"strings"

	"cellar-backend/internal/application/blobstore"
	cellarsvc "cellar-backend/internal/application/cellar"
	extractsvc "cellar-backend/internal/application/extraction"
	healthsvc "cellar-backend/internal/application/health"
	housesvc "cellar-backend/internal/application/houses"
	"cellar-backend/internal/application/ledger"
	"cellar-backend/internal/application/reconcile"
	"cellar-backend/internal/application/stock"
	winesvc "cellar-backend/internal/application/wines"
	"cellar-backend/internal/config"
	"cellar-backend/internal/constants"
	"cellar-backend/internal/infrastructure/database"
	cellarhandler "cellar-backend/internal/interfaces/handlers/cellar"
	extracthandler "cellar-backend/internal/interfaces/handlers/extraction"
	healthhandler "cellar-backend/internal/interfaces/handlers/health"
	househandler "cellar-backend/internal/interfaces/handlers/houses"
	importhandler "cellar-backend/internal/interfaces/handlers/imports"
	purchasehandler "cellar-backend/internal/interfaces/handlers/purchases"
	winehandler "cellar-backend/internal/interfaces/handlers/wines"
	"cellar-backend/internal/middleware"

	"github.com/bsm/redislock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// BodyLimit covers the largest import file plus multipart overhead.
const BodyLimit = 24 << 20

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Deps are the collaborators CreateApp wires into handlers.
type Deps struct {
	DB   *gorm.DB
	Rdb  *redis.Client
	Blob blobstore.Store
}

// CreateApp opens the database, Redis and blob store named by cfg and builds the app.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	var deps Deps
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Env != "production" {
			if err := database.AutoMigrate(db); err != nil {
				return nil, nil, nil, err
			}
		}
		deps.DB = db
	}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		deps.Rdb = redis.NewClient(opt)
	}
	blob, err := blobstore.New(context.Background(), cfg.Blob)
	if err != nil {
		return nil, nil, nil, err
	}
	deps.Blob = blob

	return New(cfg, deps), deps.DB, deps.Rdb, nil
}

// New builds the Fiber app from already opened collaborators. Cellar routes are
// mounted only when both the database and Redis are present.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		BodyLimit:               BodyLimit,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		DevPassword:    cfg.DevPassword,
		AllowLocalhost: cfg.AllowCrossSiteDev,
	}))
	app.Use(middleware.HealthMarker(deps.Rdb))

	hh := &healthhandler.Handlers{
		Rdb:            deps.Rdb,
		HealthAdminKey: cfg.HealthAdminKey,
		Probes:         probes(cfg),
	}
	if deps.DB != nil {
		hh.DB = &gormDBPinger{db: deps.DB}
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)
	app.Get("/health/errors", hh.Errors)

	if deps.DB == nil || deps.Rdb == nil {
		log.Warn().Msg("database or redis not configured; cellar routes disabled")
		return app
	}
	db := deps.DB

	app.Use(middleware.Session(deps.Rdb))

	houses := &housesvc.Service{DB: db}
	led := &ledger.Service{DB: db, MaxRetries: cfg.LedgerMaxRetries}
	wines := &winesvc.Service{DB: db, Blob: deps.Blob, ThumbnailTTL: cfg.ThumbnailTTL}
	stk := &stock.Service{DB: db}
	cellar := &cellarsvc.Service{DB: db, Blob: deps.Blob, ThumbnailTTL: cfg.ThumbnailTTL}
	rec := &reconcile.Service{
		DB:        db,
		Ledger:    led,
		Locker:    redislock.New(deps.Rdb),
		ChunkSize: cfg.ImportChunkSize,
	}
	extraction := &extractsvc.Service{}
	if ex := extractsvc.NewOpenAIExtractor(cfg.OpenAI); ex != nil {
		extraction.Extractor = ex
	}

	hoh := &househandler.Handlers{Service: houses}
	hg := app.Group("/api/v1/houses", middleware.RequireAuth())
	hg.Get("/", hoh.List)
	hg.Post("/", hoh.Create)

	view := middleware.AuthorizePermission(constants.ViewCellar)
	edit := middleware.AuthorizePermission(constants.EditCellar)

	house := app.Group("/api/v1/houses/:houseId", middleware.RequireAuth(), middleware.RequireHouseAccess(houses))

	ch := &cellarhandler.Handlers{Service: cellar}
	house.Get("/cellar", view, ch.List)
	house.Get("/cellar/stats", view, ch.Stats)
	house.Get("/cellar/countries", view, ch.Countries)
	house.Get("/cellar/export", view, ch.Export)

	ph := &purchasehandler.Handlers{Ledger: led}
	house.Post("/purchases", edit, ph.Record)
	house.Delete("/purchases/:purchaseId", edit, ph.Delete)

	wh := &winehandler.Handlers{Wines: wines, Ledger: led, Stock: stk}
	house.Get("/wines/:wineId", view, wh.Get)
	house.Get("/wines/:wineId/purchases", view, wh.Purchases)
	house.Patch("/wines/:wineId/notes", edit, wh.UpdateNotes)
	house.Put("/wines/:wineId/sommelier-advice", edit, wh.SetSommelierAdvice)
	house.Post("/wines/:wineId/label-photos", edit, wh.AddLabelPhoto)
	house.Delete("/wines/:wineId", middleware.AuthorizePermission(constants.DeleteWine), wh.Delete)
	house.Post("/wines/:wineId/consume", edit, wh.Consume)
	house.Post("/wines/:wineId/restore", edit, wh.Restore)

	ih := &importhandler.Handlers{Service: rec}
	house.Post("/imports", middleware.AuthorizePermission(constants.ImportCellar), ih.Import)

	eh := &extracthandler.Handlers{Service: extraction}
	ag := app.Group("/api/v1/ai", middleware.RequireAuth())
	ag.Post("/parse-wine", eh.ParseWine)
	ag.Post("/analyze-label", eh.AnalyzeLabel)

	return app
}

func probes(cfg *config.Config) []healthsvc.Probe {
	var out []healthsvc.Probe
	if blobstore.IsSupabase(cfg.Blob.Backend) && cfg.Blob.SupabaseURL != "" {
		out = append(out, healthsvc.Probe{Name: "blob_store", URL: strings.TrimRight(cfg.Blob.SupabaseURL, "/") + "/storage/v1/version"})
	}
	if cfg.OpenAI.APIKey != "" && cfg.OpenAI.BaseURL != "" {
		out = append(out, healthsvc.Probe{Name: "openai", URL: strings.TrimRight(cfg.OpenAI.BaseURL, "/") + "/models"})
	}
	return out
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
