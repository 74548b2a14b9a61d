package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lshigami/examprep/config"
	"github.com/lshigami/examprep/database"
	"github.com/lshigami/examprep/internal/assembler"
	"github.com/lshigami/examprep/internal/cache"
	adminctrl "github.com/lshigami/examprep/internal/controller/admin"
	userctrl "github.com/lshigami/examprep/internal/controller/user"
	"github.com/lshigami/examprep/internal/logger"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/middleware"
	"github.com/lshigami/examprep/internal/pool"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/lshigami/examprep/internal/service"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title Exam Practice Attempts API
// @version 1.0
// @description Test assembly, attempt lifecycle, scoring and result recovery for exam practice.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	reconcileOnly := flag.Bool("reconcile", false, "run one reconciliation sweep and exit")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.LogLevel)

	if *reconcileOnly {
		os.Exit(runReconcile(cfg))
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.NopLogger,
		coreModule,
		fx.Provide(NewGinEngine),

		fx.Provide(
			adminctrl.NewAdminTestController,
			userctrl.NewUserTestController,
		),

		fx.Invoke(ReportActiveViolations),
		fx.Invoke(RegisterRoutesAndStartServer),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// coreModule provides storage, repositories and services. The server and the
// one-shot reconcile mode share it.
var coreModule = fx.Options(
	fx.Provide(
		NewMigratedDatabase,
		cache.NewFromConfig,
		metrics.NewDefault,
		func(cfg *config.Config) *assembler.Assembler { return assembler.NewFromConfig(cfg.Assembler.Seed) },
	),

	// Repositories Layer
	fx.Provide(
		repository.NewTestRepository,
		repository.NewQuestionRepository,
		repository.NewTestAttemptRepository,
		repository.NewAnswerRepository,
		repository.NewScoringRuleRepository,
		func(questions repository.QuestionRepository) *pool.Index { return pool.NewIndex(questions) },
	),

	// Services Layer
	fx.Provide(
		service.NewScoreConverterService,
		service.NewScoringRuleService,
		func(attempts repository.TestAttemptRepository, c cache.ResultCache, m *metrics.Metrics) *service.ResultWriter {
			return service.NewResultWriter(attempts, c, m)
		},
		service.NewTestService,
		service.NewUserTestService,
		service.NewAttemptService,
		service.NewReconcileService,
		service.NewAdminTestService,
	),
)

// NewMigratedDatabase connects and brings the schema up to date. The server
// still starts when duplicate in-progress attempts keep the single-active
// index from being created; the `-reconcile` run repairs them and adds it.
func NewMigratedDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if err := database.EnsureSingleActiveIndex(db); err != nil {
		log.Warn().Err(err).Msg("Single active attempt index is missing, run with -reconcile to repair duplicates")
	}
	return db, nil
}

// ReportActiveViolations logs every (user, test) pair that holds more than
// one in-progress attempt.
func ReportActiveViolations(svc service.ReconcileService) {
	groups, err := svc.FindViolations(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Startup: Failed to check for duplicate attempts")
		return
	}
	for _, g := range groups {
		log.Warn().Str("userID", g.UserID).Uint("testID", g.TestID).Int("inProgress", g.Count).
			Msg("Startup: Duplicate in-progress attempts found")
	}
}

// runReconcile sweeps duplicates and then creates the single-active index,
// which cannot exist while duplicates remain.
func runReconcile(cfg *config.Config) int {
	var (
		svc service.ReconcileService
		db  *gorm.DB
	)
	app := fx.New(fx.Supply(cfg), fx.NopLogger, coreModule, fx.Populate(&svc, &db))
	if err := app.Err(); err != nil {
		log.Error().Err(err).Msg("Failed to build reconcile dependencies")
		return 1
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	report, err := svc.Reconcile(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reconcile sweep finished with errors")
		return 1
	}
	log.Info().Int("groupsFixed", report.GroupsFixed).Int("attemptsAbandoned", report.AttemptsAbandoned).
		Interface("groups", report.Groups).Msg("Reconcile sweep done")

	if err := database.EnsureSingleActiveIndex(db); err != nil {
		log.Error().Err(err).Msg("Failed to create single active attempt index after sweep")
		return 1
	}
	log.Info().Msg("Single active attempt index in place")
	return 0
}

func NewGinEngine(cfg *config.Config, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("request_id", param.Request.Header.Get(middleware.HeaderRequestID)).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.Metrics.Enabled {
		r.Use(m.Middleware())
		r.GET("/metrics", m.Handler())
	}

	// URL: http://localhost:PORT/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	return r
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	adminTestCtrl *adminctrl.AdminTestController,
	userTestCtrl *userctrl.UserTestController,
) {
	adminTestCtrl.RegisterRoutes(router.Group("/api/v1/admin"))
	userTestCtrl.RegisterRoutes(router.Group("/api/v1"))

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Exam practice API server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			if err := server.Shutdown(ctx); err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				return sqlDB.Close()
			}
			return nil
		},
	})
}
