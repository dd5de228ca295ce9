package app

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/controller"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"exam_prep_backend/pkg/configwatcher"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/events"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/security"
	"exam_prep_backend/pkg/tracing"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	publisher       events.Publisher
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	cancel          context.CancelFunc
}

type repositories struct {
	question   *repository.QuestionRepository
	attempt    *repository.AttemptRepository
	submission *repository.SubmissionRepository
	session    *repository.SessionRepository
}

type services struct {
	storage *service.StorageService
	ai      *service.AIService
	policy  *service.GradingPolicy
	attempt *service.AttemptService
	grading *service.GradingService
	mastery *service.MasteryTracker
	scoring *service.ScoringService
	session *service.SessionService
}

type controllers struct {
	session *controller.SessionController
	mastery *controller.MasteryController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) reloadConfig(cfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		question:   repository.NewQuestionRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		submission: repository.NewSubmissionRepository(db),
		session:    repository.NewSessionRepository(db),
	}
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(ctx, cfg)
	s.ai = service.NewAIService(cfg.AI)
	s.policy = service.NewGradingPolicy(cfg.Grading)
	s.attempt = service.NewAttemptService(repos.attempt)

	pipeline := service.NewVerificationPipeline(s.ai, cfg.AI.VerifyTimeout)
	s.grading = service.NewGradingService(
		pipeline,
		s.ai,
		repos.submission,
		s.attempt,
		s.policy,
		a.publisher,
		cfg.Grading,
		cfg.AI.GradeTimeout,
	)

	s.mastery = service.NewMasteryTracker(repos.attempt)
	s.scoring = service.NewScoringService(repos.submission, repos.attempt, s.policy, s.grading)

	var states service.SessionStateStore
	if rdb != nil {
		states = service.NewRedisStateStore(rdb, cfg.Session.StateTTL)
	} else {
		states = service.NewMemoryStateStore()
	}

	seed := time.Now().UnixNano()
	pool := service.NewQuestionPool(repos.question)
	s.session = service.NewSessionService(service.SessionDeps{
		Questions: repos.question,
		Pool:      pool,
		Mastery:   s.mastery,
		Selector:  service.NewPrioritySelector(rand.NewSource(seed)),
		Blueprint: service.NewBlueprintSelector(pool, cfg.Blueprint.Slots(), rand.NewSource(seed+1)),
		Attempts:  s.attempt,
		Grading:   s.grading,
		Scoring:   s.scoring,
		Records:   repos.session,
		States:    states,
		Publisher: a.publisher,
		Options: service.SessionOptions{
			PracticeLimit:  cfg.Session.PracticeLimit,
			ExamDuration:   cfg.Blueprint.Duration,
			RetainFinished: cfg.Session.StateTTL,
		},
	})

	// 阈值与结算等待时间支持热更新
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.policy.Reload(newCfg.Grading)
	})

	return s
}

// resumeSessions 按数据库中仍在进行的会话记录恢复快照
func (a *App) resumeSessions(ctx context.Context, repos *repositories, s *services) {
	rows, err := repos.session.ListRunning(ctx)
	if err != nil {
		logger.Log.Warn("Failed to list running sessions", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		return
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	logger.Log.Info("Resuming running sessions",
		zap.Int("running", len(ids)),
		zap.Int("restored", s.session.Resume(ctx, ids)),
	)
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		session: controller.NewSessionController(s.session, s.storage),
		mastery: controller.NewMasteryController(s.mastery),
		health:  controller.NewHealthController(a.DB, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定时巡检会话截止时间，防止进程内计时器丢失
func (a *App) startBackgroundTasks(ctx context.Context, s *services, cfg *config.Config) {
	interval := cfg.Session.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.session.Tick(now); n > 0 {
					logger.Log.Info("Deadline sweep finished sessions", zap.Int("count", n))
				}
			}
		}
	}()

	go func() {
		configPath := filepath.Join(configDir, "config.yaml")
		if err := configwatcher.WatchConfig(ctx, configPath, a.reloadConfig); err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func initPublisher(cfg *config.EventsConfig) events.Publisher {
	if !cfg.Enabled {
		return events.NoopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		logger.Log.Warn("AMQP unavailable, domain events disabled", zap.Error(err))
		return events.NoopPublisher{}
	}
	return p
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	// 非 release 模式启动时自动建表
	migrate := cfg.ForceMigrate || cfg.Server.Mode != "release"
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 只用于会话快照，连不上时退回内存
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, session snapshots kept in memory", zap.Error(err))
	}
	app.Redis = rdb

	app.publisher = initPublisher(&cfg.Events)

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	repos := app.initRepositories(db)
	services := app.initServices(ctx, repos, cfg, app.Redis)
	app.services = services
	controllers := app.initControllers(services)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-prep", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.resumeSessions(ctx, repos, services)
	app.startBackgroundTasks(ctx, services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 后台评分不随请求取消，退出前等它们写完
	if a.services != nil {
		if !a.services.grading.Shutdown(30 * time.Second) {
			logger.Log.Warn("Grading workers did not drain before shutdown")
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	log.Println("Server exiting")
}
