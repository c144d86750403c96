package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	"github.com/rajivgeraev/recyclables-api/internal/db"
	"github.com/rajivgeraev/recyclables-api/internal/logger"
	"github.com/rajivgeraev/recyclables-api/internal/query"
	"github.com/rajivgeraev/recyclables-api/internal/realtime"
	"github.com/rajivgeraev/recyclables-api/internal/services/auth"
	"github.com/rajivgeraev/recyclables-api/internal/services/cloudinary"
	"github.com/rajivgeraev/recyclables-api/internal/services/feed"
	"github.com/rajivgeraev/recyclables-api/internal/services/recyclable"
	"github.com/rajivgeraev/recyclables-api/internal/store"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
	"github.com/rajivgeraev/recyclables-api/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	log := logger.New(cfg.AppEnv)
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("❌ Сервис остановлен с ошибкой", zap.Error(err))
	}
	log.Info("Сервис корректно остановлен")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, channel, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	opts, err := recyclable.TransitionOptions(cfg)
	if err != nil {
		return fmt.Errorf("ошибка в таблице переходов статусов: %w", err)
	}

	jwtService := utils.NewJWTService(cfg.JWTSecret)
	wsManager := websocket.NewManager(jwtService, log.Named("ws"))
	defer wsManager.Shutdown()

	// Лента живет столько же, сколько процесс
	fd := feed.New(st, channel, cfg.FeedDebounce, log.Named("feed"))
	fd.SetNotifier(wsManager)
	if err := fd.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска ленты: %w", err)
	}
	defer fd.Close()

	manager := recyclable.NewManager(st, log.Named("recyclables"), append(opts, recyclable.WithInvalidator(fd))...)

	app := fiber.New(fiber.Config{
		AppName:      "Recyclables API",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(fiber.Ctx) bool { return fd.View(query.Filter{}).Loaded },
	}))

	// Регистрируем маршруты
	auth.NewAuthService(cfg, st, jwtService, log.Named("auth")).SetupRoutes(app)
	cloudinary.NewCloudinaryService(cfg.CloudinaryConfig, jwtService, log.Named("cloudinary")).SetupRoutes(app)
	recyclable.NewRecyclableService(manager, st, fd, jwtService, log.Named("http")).SetupRoutes(app)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsManager)
	wsServer := &http.Server{
		Addr:              ":" + cfg.WSPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("✅ Recyclables API запущен", zap.String("port", cfg.HTTPPort))
		return app.Listen(":"+cfg.HTTPPort, fiber.ListenConfig{
			GracefulContext:       gctx,
			ShutdownTimeout:       shutdownTimeout,
			DisableStartupMessage: true,
			OnShutdownError: func(err error) {
				log.Error("Ошибка остановки HTTP сервера", zap.Error(err))
			},
		})
	})

	g.Go(func() error {
		log.Info("✅ WebSocket сервер запущен", zap.String("port", cfg.WSPort))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка WebSocket сервера: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return wsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore выбирает хранилище и источник уведомлений по конфигурации
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, *realtime.Channel, func(), error) {
	if cfg.Storage == "memory" {
		hub := realtime.NewLocalHub()
		log.Warn("Используется хранилище в памяти, данные не сохраняются между перезапусками")
		return store.NewMemoryStore(hub), realtime.NewChannel("local", hub.Open, log.Named("realtime")), func() {}, nil
	}

	database, err := db.InitDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	var channel *realtime.Channel
	switch cfg.ChangeFeed {
	case "kafka":
		channel = realtime.NewChannel("kafka", realtime.OpenKafka(realtime.KafkaConfig{
			Brokers: cfg.KafkaConfig.Brokers,
			Topic:   cfg.KafkaConfig.Topic,
			GroupID: cfg.KafkaConfig.GroupID,
		}, log.Named("kafka")), log.Named("realtime"))
	case "postgres", "":
		channel = realtime.NewChannel("postgres", realtime.OpenPGNotify(cfg.DatabaseURL, log.Named("pgnotify")), log.Named("realtime"))
	default:
		database.Close()
		return nil, nil, nil, fmt.Errorf("неизвестный CHANGE_FEED: %q", cfg.ChangeFeed)
	}

	return store.NewPostgresStore(database), channel, database.Close, nil
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
