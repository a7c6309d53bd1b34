// Точка входа Neptunium — сервис хранения файлов проекций Minecraft.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// эфемерному хранилищу и объектному хранилищу, создаёт сервисный слой
// и API handlers, запускает фоновые задачи (очистка кодов, снимок статистики,
// topologymetrics) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/neptunium/internal/api/handlers"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/api/openapi"
	"github.com/bigkaa/neptunium/internal/cache"
	"github.com/bigkaa/neptunium/internal/config"
	"github.com/bigkaa/neptunium/internal/database"
	"github.com/bigkaa/neptunium/internal/mailer"
	"github.com/bigkaa/neptunium/internal/objectstore"
	"github.com/bigkaa/neptunium/internal/repository"
	"github.com/bigkaa/neptunium/internal/server"
	"github.com/bigkaa/neptunium/internal/service"
)

func main() {
	// 0. Локальный .env (не переопределяет уже заданные переменные)
	envErr := godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Neptunium запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)
	if envErr == nil {
		logger.Info("Загружен файл .env")
	}

	if os.Getenv("NP_DEPHEALTH_GROUP") == "" {
		logger.Warn("NP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx := context.Background()

	// 3. Проверка встроенного OpenAPI-документа
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Некорректный OpenAPI-документ", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 6. Эфемерное хранилище (Redis или in-process)
	store, err := cache.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к эфемерному хранилищу", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// 7. Объектное хранилище
	objects, err := objectstore.New(cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации объектного хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Email (Resend)
	mail := mailer.New(cfg, logger)

	// 9. Repositories
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	codeRepo := repository.NewVerificationCodeRepository(pool)
	fileRepo := repository.NewProjectionFileRepository(pool)
	keyRepo := repository.NewAPIKeyRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	statsRepo := repository.NewSystemStatsRepository(pool)
	uow := service.NewUnitOfWork(repository.NewTxRunner(pool))

	// 10. Services
	auditor := service.NewAuditor(auditRepo, logger)
	tokens := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	authSvc := service.NewAuthService(
		userRepo, codeRepo, sessionRepo, uow,
		store, mail, tokens, auditor,
		service.AuthSettings{
			CodeTTL:          cfg.CodeTTL,
			CodeMaxAttempts:  cfg.CodeMaxAttempts,
			CodeCooldown:     cfg.CodeCooldown,
			RegisterIPLimit:  cfg.RegisterIPLimit,
			RegisterIPWindow: cfg.RegisterIPWindow,
			RegistrationTTL:  cfg.RegistrationTTL,
		},
		logger,
	)
	keySvc := service.NewAPIKeyService(keyRepo, store, auditor, cfg.MaxAPIKeysPerUser, logger)
	fileSvc := service.NewFileService(
		fileRepo,
		service.NewFileIDAllocator(fileRepo),
		objects,
		service.NewFileCache(cfg.FileCacheSize, cfg.FileCacheTTL),
		auditor,
		service.FileSettings{
			MaxFileSize:       cfg.MaxFileSize,
			AllowedExtensions: cfg.AllowedExtensions,
			UploadURLTTL:      cfg.UploadURLTTL,
			DownloadURLTTL:    cfg.DownloadURLTTL,
		},
		logger,
	)
	dashboardSvc := service.NewDashboardService(userRepo, fileRepo, keyRepo, auditRepo, statsRepo, auditor, logger)

	// 11. Фоновые задачи (robfig/cron)
	maintenance := service.NewMaintenance(codeRepo, sessionRepo, dashboardSvc, logger)
	if err := maintenance.Start(cfg.CleanupSchedule, cfg.StatsSchedule); err != nil {
		logger.Error("Ошибка запуска фоновых задач", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. topologymetrics — мониторинг PostgreSQL и объектного хранилища
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"neptunium",
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:                pgDB,
			PostgresURL:       cfg.DatabaseURL(),
			StorageURL:        cfg.StorageURL(),
			StorageHealthPath: cfg.S3HealthPath,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. API handlers и роутер
	apiHandler := handlers.NewAPIHandler(authSvc, keySvc, fileSvc, dashboardSvc, cfg.MaxFileSize, logger)
	healthHandler := handlers.NewHealthHandler(handlers.HealthCheckers{
		Database: database.NewReadinessChecker(pool),
		Cache:    store,
		Storage:  objects,
		Email:    mail,
	}, logger)

	router := server.NewRouter(server.RouterDeps{
		API:         apiHandler,
		Health:      healthHandler,
		Auth:        middleware.NewAuth(tokens, keySvc, logger),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,

		TrustedProxies: cfg.TrustedProxies,
	})

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	maintenance.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Neptunium остановлен")
}
