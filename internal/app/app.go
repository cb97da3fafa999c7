package app

import (
	"fmt"

	"github.com/clinicore/server/internal/module/dispensing"
	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/invoice"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/clinicore/server/internal/module/shop"
	"github.com/clinicore/server/internal/shared/cache"
	"github.com/clinicore/server/internal/shared/config"
	"github.com/clinicore/server/internal/shared/database"
	"github.com/clinicore/server/internal/shared/logger"
	"github.com/clinicore/server/internal/shared/middleware"
	"github.com/clinicore/server/internal/utils/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires configuration, storage and the order modules together.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	executor *engine.Executor

	ledgerHandler     *ledger.Handler
	shopHandler       *shop.Handler
	dispensingHandler *dispensing.Handler
	invoiceHandler    *invoice.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New("clinicore"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	// Redis is optional; without it the idempotency middleware is skipped.
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			zapLog.Warn("redis connection failed, idempotency disabled", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()

	return app, nil
}

func (a *App) migrate() error {
	return a.db.AutoMigrate(
		&ledger.Resource{},
		&engine.TransitionRecord{},
		&shop.ShopOrder{},
		&shop.ShopOrderItem{},
		&dispensing.DispensingOrder{},
		&dispensing.DispensingItem{},
		&invoice.Invoice{},
		&invoice.InvoiceItem{},
		&invoice.Payment{},
	)
}

// initModules builds repositories, the transition executor and the module
// services in dependency order.
func (a *App) initModules() error {
	ledgerStore := ledger.NewStore(a.db, a.zapLogger)
	records := engine.NewRecordRepository(a.db)

	shopRepo := shop.NewRepository(a.db)
	dispensingRepo := dispensing.NewRepository(a.db)
	invoiceRepo := invoice.NewRepository(a.db)

	registry, err := engine.NewRegistry(
		shop.Definition(),
		dispensing.Definition(),
		invoice.Definition(invoiceRepo),
	)
	if err != nil {
		return fmt.Errorf("compile state machines: %w", err)
	}

	txManager := database.NewTxManager(a.db)
	a.executor = engine.NewExecutor(txManager, registry, ledgerStore, records, a.zapLogger, a.metrics)
	a.executor.RegisterStore(engine.KindShopOrder, shopRepo)
	a.executor.RegisterStore(engine.KindDispensingOrder, dispensingRepo)
	a.executor.RegisterStore(engine.KindInvoice, invoiceRepo)

	a.ledgerHandler = ledger.NewHandler(ledger.NewService(ledgerStore, a.zapLogger))
	a.shopHandler = shop.NewHandler(shop.NewService(shopRepo, a.executor, a.zapLogger))
	a.dispensingHandler = dispensing.NewHandler(dispensing.NewService(dispensingRepo, a.executor, a.zapLogger))
	a.invoiceHandler = invoice.NewHandler(invoice.NewService(txManager, invoiceRepo, ledgerStore, a.executor, a.zapLogger))

	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	validator := middleware.NewTokenValidator(a.config.Auth.JWTSecret)

	api := r.Group("/api/v1")
	protected := api.Group("")
	protected.Use(middleware.RequireAuth(validator))
	if a.redis != nil {
		protected.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))
	}

	a.ledgerHandler.RegisterProtectedRoutes(protected)
	a.shopHandler.RegisterProtectedRoutes(protected)
	a.dispensingHandler.RegisterProtectedRoutes(protected)
	a.invoiceHandler.RegisterProtectedRoutes(protected)

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases the application's resources.
func (a *App) Stop() {
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.zapLogger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.zapLogger.Warn("close database", zap.Error(err))
		}
	}
	_ = a.zapLogger.Sync()
}
